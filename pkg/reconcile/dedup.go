package reconcile

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/budgetbrief/pkg/api"
)

// DedupKey identifies a card transaction across the posted and pending feeds.
//
// Two distinct purchases with the same amount and description on the same day
// share a key and collapse into one. Providers give no stable id across feeds,
// so this is accepted.
func DedupKey(provider, sourceID string, date time.Time, amount decimal.Decimal, description string) string {
	var b strings.Builder
	b.WriteString(provider)
	b.WriteByte('|')
	b.WriteString(sourceID)
	b.WriteByte('|')
	b.WriteString(date.Format(api.DateLayout))
	b.WriteByte('|')
	b.WriteString(amount.Abs().StringFixed(2))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.TrimSpace(description)))
	return b.String()
}

// MergeCardTransactions drops pending entries whose key matches a posted entry.
// Posted entries are returned untouched and always win.
func MergeCardTransactions(posted, pending []api.Txn, cardID, provider string) (postedOut, pendingOut []api.Txn) {
	seen := make(map[string]struct{}, len(posted))
	for _, p := range posted {
		seen[DedupKey(provider, cardID, p.Date, p.Amount, p.Description)] = struct{}{}
	}

	pendingOut = make([]api.Txn, 0, len(pending))
	for _, p := range pending {
		if _, dup := seen[DedupKey(provider, cardID, p.Date, p.Amount, p.Description)]; dup {
			continue
		}
		pendingOut = append(pendingOut, p)
	}
	return posted, pendingOut
}
