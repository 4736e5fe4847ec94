// Package api defines the core interfaces and data structures for budgetbrief.
package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-day layout used for dates in keys, queries and reports.
const DateLayout = "2006-01-02"

// ItemKind distinguishes bank accounts from cards.
type ItemKind string

const (
	KindAccount ItemKind = "account"
	KindCard    ItemKind = "card"
)

// ConnectedItem is a single account or card exposed by one credential set.
type ConnectedItem struct {
	Kind        ItemKind `json:"kind"`
	ID          string   `json:"id"`
	Provider    string   `json:"provider"`
	DisplayName string   `json:"display_name"`
	Currency    string   `json:"currency"`
	// CredentialID is the credential set that owns this item after global deduplication.
	CredentialID string `json:"credential_id"`
}

// RawTransaction is a transaction as returned by the Open Banking API.
// For accounts a negative amount is spend; for cards a positive amount is spend.
type RawTransaction struct {
	TransactionID string
	Timestamp     string
	Description   string
	// Amount is not Valid when the provider value was missing or unparseable.
	Amount       decimal.NullDecimal
	Currency     string
	MerchantName string
	Category     string
	// Raw is the provider payload, kept for diagnostics.
	Raw json.RawMessage
}

// Status reports whether a transaction has settled.
type Status string

const (
	StatusPosted  Status = "posted"
	StatusPending Status = "pending"
)

// Txn is the canonical transaction: negative Amount is spend, positive is a refund or credit.
type Txn struct {
	SourceKind  ItemKind        `json:"source_kind"`
	SourceID    string          `json:"source_id"`
	Provider    string          `json:"provider"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Merchant    string          `json:"merchant,omitempty"`
	Category    string          `json:"category,omitempty"`
	Status      Status          `json:"status"`
	Raw         json.RawMessage `json:"-"`
}

// DateString returns the posted date as an ISO calendar day.
func (t Txn) DateString() string {
	return t.Date.Format(DateLayout)
}

// IsSpend reports whether the transaction takes money out.
func (t Txn) IsSpend() bool {
	return t.Amount.IsNegative()
}

// Label is the merchant name, falling back to the description.
func (t Txn) Label() string {
	if t.Merchant != "" {
		return t.Merchant
	}
	return t.Description
}

// Mode selects how a report window is derived.
type Mode string

const (
	ModeWeekly  Mode = "weekly"
	ModeMonthly Mode = "monthly"
	ModeCustom  Mode = "custom"
)

// ParseMode converts a user supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeWeekly, ModeMonthly, ModeCustom:
		return m, nil
	default:
		return "", &InvalidModeError{Mode: s}
	}
}

// DateWindow is the [From, To) range a report covers.
// From is inclusive, To is exclusive; a single day is To = From + 1 day.
type DateWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
	Mode Mode      `json:"mode"`
}

// Contains reports whether t falls inside [From, To).
func (w DateWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// LastDay returns the inclusive final calendar day of the window.
func (w DateWindow) LastDay() time.Time {
	return w.To.AddDate(0, 0, -1)
}

// String formats the window as "from..to" with the exclusive end.
func (w DateWindow) String() string {
	return w.From.Format(DateLayout) + ".." + w.To.Format(DateLayout)
}

// BudgetSource records where a budget amount came from.
type BudgetSource string

const (
	BudgetWeekly     BudgetSource = "weekly"
	BudgetMonthly    BudgetSource = "monthly"
	BudgetCustom     BudgetSource = "custom"
	BudgetCalculated BudgetSource = "calculated"
)

// BudgetInfo is the budget derived for a window.
type BudgetInfo struct {
	Amount    decimal.Decimal `json:"amount"`
	Source    BudgetSource    `json:"source"`
	Days      int             `json:"days"`
	DailyRate decimal.Decimal `json:"daily_rate"`
}

// ExcludedExpense is an externally declared reimbursable or irregular expense.
type ExcludedExpense struct {
	Date   time.Time       `json:"date"`
	Vendor string          `json:"vendor"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
}

// Credential is one stored token representing one consented bank connection.
type Credential interface {
	// ID identifies the credential set in logs and reconnect lists.
	ID() string
	// Token returns a valid bearer token, refreshing it first if required.
	Token(ctx context.Context) (string, error)
}

// CredentialSource lists the credential sets in a stable processing order.
type CredentialSource interface {
	Credentials(ctx context.Context) ([]Credential, error)
}

// BankClient is the Open Banking API the aggregator fans out across.
// Implementations return ErrUnsupported when the provider lacks an endpoint.
type BankClient interface {
	Accounts(ctx context.Context, token string) ([]ConnectedItem, error)
	Cards(ctx context.Context, token string) ([]ConnectedItem, error)
	Transactions(ctx context.Context, token string, item ConnectedItem, window DateWindow, pending bool) ([]RawTransaction, error)
}

// ExcludedExpenseSource supplies declared expenses to exclude from budget totals.
type ExcludedExpenseSource interface {
	ExcludedExpenses(ctx context.Context) ([]ExcludedExpense, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads time.Now.
var SystemClock Clock = ClockFunc(time.Now)
