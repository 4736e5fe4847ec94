// Package reconcile converts provider records into canonical transactions and
// removes pending card entries that have already settled.
package reconcile

import (
	"strings"
	"time"

	"github.com/ArionMiles/budgetbrief/pkg/api"
)

// timestampLayouts are tried in order. Providers send RFC 3339 but some omit the offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	api.DateLayout,
}

// Normalize converts one provider record into a Txn.
// Card amounts are negated so that spend is negative for every source.
func Normalize(raw api.RawTransaction, item api.ConnectedItem, status api.Status) (api.Txn, error) {
	date, err := parseDate(raw.Timestamp)
	if err != nil {
		return api.Txn{}, err
	}
	if !raw.Amount.Valid {
		return api.Txn{}, &api.DataQualityError{Field: "amount", Value: raw.TransactionID, Reason: "missing or not a number"}
	}

	amount := raw.Amount.Decimal
	if item.Kind == api.KindCard {
		amount = amount.Neg()
	}

	currency := raw.Currency
	if currency == "" {
		currency = item.Currency
	}

	return api.Txn{
		SourceKind:  item.Kind,
		SourceID:    item.ID,
		Provider:    item.Provider,
		Date:        date,
		Amount:      amount,
		Currency:    currency,
		Description: raw.Description,
		Merchant:    raw.MerchantName,
		Category:    raw.Category,
		Status:      status,
		Raw:         raw.Raw,
	}, nil
}

// Rejection pairs a dropped record with the reason it was dropped.
type Rejection struct {
	ItemID        string
	TransactionID string
	Err           error
}

// NormalizeAll normalizes every record, collecting rejections instead of stopping.
func NormalizeAll(raws []api.RawTransaction, item api.ConnectedItem, status api.Status) ([]api.Txn, []Rejection) {
	txns := make([]api.Txn, 0, len(raws))
	var rejected []Rejection
	for _, raw := range raws {
		txn, err := Normalize(raw, item, status)
		if err != nil {
			rejected = append(rejected, Rejection{ItemID: item.ID, TransactionID: raw.TransactionID, Err: err})
			continue
		}
		txns = append(txns, txn)
	}
	return txns, rejected
}

// parseDate keeps the calendar day as written by the provider, ignoring the offset.
func parseDate(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, &api.DataQualityError{Field: "timestamp", Value: ts, Reason: "missing"}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, &api.DataQualityError{Field: "timestamp", Value: ts, Reason: "unrecognised format"}
}
