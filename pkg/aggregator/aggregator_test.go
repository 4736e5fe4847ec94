package aggregator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/budgetbrief/pkg/api"
)

type fakeCred struct {
	id  string
	err error
}

func (c fakeCred) ID() string { return c.id }

func (c fakeCred) Token(context.Context) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return "tok-" + c.id, nil
}

type fakeCreds []api.Credential

func (f fakeCreds) Credentials(context.Context) ([]api.Credential, error) { return f, nil }

type feedKey struct {
	itemID  string
	pending bool
}

// fakeBank serves canned data keyed by token.
type fakeBank struct {
	accounts map[string][]api.ConnectedItem
	cards    map[string][]api.ConnectedItem
	listErr  map[string]error
	txns     map[feedKey][]api.RawTransaction
	txnErr   map[feedKey]error

	mu    sync.Mutex
	calls []feedKey
}

func (b *fakeBank) Accounts(_ context.Context, token string) ([]api.ConnectedItem, error) {
	if err := b.listErr[token]; err != nil {
		return nil, err
	}
	return b.accounts[token], nil
}

func (b *fakeBank) Cards(_ context.Context, token string) ([]api.ConnectedItem, error) {
	if err := b.listErr[token]; err != nil {
		return nil, err
	}
	return b.cards[token], nil
}

func (b *fakeBank) Transactions(_ context.Context, _ string, item api.ConnectedItem, _ api.DateWindow, pending bool) ([]api.RawTransaction, error) {
	k := feedKey{item.ID, pending}
	b.mu.Lock()
	b.calls = append(b.calls, k)
	b.mu.Unlock()
	if err := b.txnErr[k]; err != nil {
		return nil, err
	}
	return b.txns[k], nil
}

func (b *fakeBank) fetched(itemID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.ContainsFunc(b.calls, func(k feedKey) bool { return k.itemID == itemID })
}

type recorder struct {
	mu     sync.Mutex
	events []api.Event
}

func (r *recorder) Observe(e api.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count(kind api.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func rawTxn(id, date, amount, desc string) api.RawTransaction {
	return api.RawTransaction{
		TransactionID: id,
		Timestamp:     date + "T12:00:00Z",
		Amount:        decimal.NewNullDecimal(decimal.RequireFromString(amount)),
		Description:   desc,
	}
}

var testWindow = api.DateWindow{
	From: time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC),
	To:   time.Date(2025, 11, 27, 0, 0, 0, 0, time.UTC),
	Mode: api.ModeWeekly,
}

func newBank() *fakeBank {
	return &fakeBank{
		accounts: map[string][]api.ConnectedItem{
			"tok-monzo": {{ID: "acc-m", Provider: "monzo"}},
			"tok-amex":  {},
			"tok-joint": {{ID: "acc-m", Provider: "monzo"}, {ID: "acc-j", Provider: "monzo"}},
		},
		cards: map[string][]api.ConnectedItem{
			"tok-amex": {{ID: "card-a", Provider: "amex"}},
		},
		listErr: map[string]error{},
		txns: map[feedKey][]api.RawTransaction{
			{"acc-m", false}: {
				rawTxn("m1", "2025-11-21", "-12.50", "Pret"),
				rawTxn("m2", "2025-11-22", "-3.20", "TfL"),
			},
			{"acc-j", false}: {
				rawTxn("j1", "2025-11-23", "-60.00", "Octopus Energy"),
			},
			{"card-a", false}: {
				rawTxn("a1", "2025-11-24", "45.00", "TESCO STORES"),
			},
			{"card-a", true}: {
				rawTxn("a2", "2025-11-24", "45.00", "tesco stores"),
				rawTxn("a3", "2025-11-26", "9.99", "Netflix"),
			},
		},
		txnErr: map[feedKey]error{},
	}
}

func TestAggregateAll(t *testing.T) {
	bank := newBank()
	creds := fakeCreds{fakeCred{id: "monzo"}, fakeCred{id: "amex"}, fakeCred{id: "joint"}}
	rec := &recorder{}

	res, err := New(bank, creds, Config{}, WithObserver(rec)).AggregateAll(context.Background(), testWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var itemIDs []string
	for _, item := range res.Items {
		itemIDs = append(itemIDs, item.ID)
	}
	if want := []string{"acc-m", "card-a", "acc-j"}; !reflect.DeepEqual(itemIDs, want) {
		t.Errorf("items: got %v, want %v", itemIDs, want)
	}
	if res.Items[0].CredentialID != "monzo" {
		t.Errorf("acc-m owner: got %q, want monzo", res.Items[0].CredentialID)
	}
	if res.Items[1].Kind != api.KindCard {
		t.Errorf("card-a kind: got %q", res.Items[1].Kind)
	}

	var got []string
	for _, txn := range res.Transactions {
		got = append(got, fmt.Sprintf("%s %s %s", txn.SourceID, txn.Amount.StringFixed(2), txn.Status))
	}
	want := []string{
		"acc-m -12.50 posted",
		"acc-m -3.20 posted",
		"card-a -45.00 posted",
		"card-a -9.99 pending",
		"acc-j -60.00 posted",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("transactions:\ngot  %v\nwant %v", got, want)
	}

	if n := rec.count(api.EventPendingDropped); n != 1 {
		t.Errorf("pending_dropped events: got %d, want 1", n)
	}
	if n := rec.count(api.EventItemSkipped); n != 1 {
		t.Errorf("item_skipped events: got %d, want 1", n)
	}
	if len(res.Warnings) != 0 || len(res.NeedsReconnect) != 0 {
		t.Errorf("unexpected warnings %v / reconnect %v", res.Warnings, res.NeedsReconnect)
	}
}

func TestAggregateAllIsDeterministic(t *testing.T) {
	creds := fakeCreds{fakeCred{id: "monzo"}, fakeCred{id: "amex"}, fakeCred{id: "joint"}}
	agg := New(newBank(), creds, Config{MaxConcurrency: 2})

	first, err := agg.AggregateAll(context.Background(), testWindow)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	for range 5 {
		again, err := agg.AggregateAll(context.Background(), testWindow)
		if err != nil {
			t.Fatalf("repeat run: %v", err)
		}
		if !reflect.DeepEqual(first.Transactions, again.Transactions) {
			t.Fatal("transactions differ between identical runs")
		}
	}
}

func TestAggregateAllExcludedAccounts(t *testing.T) {
	bank := newBank()
	creds := fakeCreds{fakeCred{id: "monzo"}, fakeCred{id: "joint"}}

	res, err := New(bank, creds, Config{ExcludedAccountIDs: []string{"acc-j"}}).AggregateAll(context.Background(), testWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "acc-m" {
		t.Errorf("items: got %+v", res.Items)
	}
	if bank.fetched("acc-j") {
		t.Error("excluded account was fetched")
	}
}

func TestAggregateAllCredentialFailureIsIsolated(t *testing.T) {
	bank := newBank()
	creds := fakeCreds{
		fakeCred{id: "monzo", err: errors.New("refresh token revoked")},
		fakeCred{id: "amex"},
		fakeCred{id: "joint"},
	}
	rec := &recorder{}

	res, err := New(bank, creds, Config{}, WithObserver(rec)).AggregateAll(context.Background(), testWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(res.NeedsReconnect, []string{"monzo"}) {
		t.Errorf("needs reconnect: got %v", res.NeedsReconnect)
	}
	// With monzo gone the joint set owns acc-m.
	if res.Items[1].ID != "acc-m" || res.Items[1].CredentialID != "joint" {
		t.Errorf("acc-m ownership: got %+v", res.Items)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings: got %v", res.Warnings)
	}
	if rec.count(api.EventCredentialFailed) != 1 {
		t.Errorf("credential_failed events: got %d", rec.count(api.EventCredentialFailed))
	}
}

func TestAggregateAllFetchFailures(t *testing.T) {
	bank := newBank()
	bank.txnErr[feedKey{"acc-m", false}] = errors.New("502 bad gateway")
	bank.txnErr[feedKey{"card-a", true}] = fmt.Errorf("pending: %w", api.ErrUnsupported)
	bank.txnErr[feedKey{"acc-j", false}] = &api.CredentialError{CredentialID: "joint", Err: errors.New("401")}
	creds := fakeCreds{fakeCred{id: "monzo"}, fakeCred{id: "amex"}, fakeCred{id: "joint"}}

	res, err := New(bank, creds, Config{}).AggregateAll(context.Background(), testWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Transactions) != 1 || res.Transactions[0].SourceID != "card-a" {
		t.Errorf("transactions: got %+v", res.Transactions)
	}
	// Unsupported is not a warning.
	if len(res.Warnings) != 2 {
		t.Errorf("warnings: got %v", res.Warnings)
	}
	if !reflect.DeepEqual(res.NeedsReconnect, []string{"joint"}) {
		t.Errorf("needs reconnect: got %v", res.NeedsReconnect)
	}
}

func TestAggregateAllUnsupportedListing(t *testing.T) {
	bank := newBank()
	bank.listErr["tok-amex"] = api.ErrUnsupported
	creds := fakeCreds{fakeCred{id: "amex"}, fakeCred{id: "monzo"}}

	res, err := New(bank, creds, Config{}).AggregateAll(context.Background(), testWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 1 || len(res.Warnings) != 0 {
		t.Errorf("got items %+v warnings %v", res.Items, res.Warnings)
	}
}

func TestAggregateAllRejectsBadRecords(t *testing.T) {
	bank := newBank()
	bank.txns[feedKey{"acc-j", false}] = append(bank.txns[feedKey{"acc-j", false}],
		api.RawTransaction{TransactionID: "bad", Timestamp: "not-a-date"})
	creds := fakeCreds{fakeCred{id: "joint"}}

	res, err := New(bank, creds, Config{}).AggregateAll(context.Background(), testWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rejected) != 1 || res.Rejected[0].TransactionID != "bad" {
		t.Errorf("rejected: got %+v", res.Rejected)
	}
	if len(res.Transactions) != 3 {
		t.Errorf("transactions: got %d, want 3", len(res.Transactions))
	}
}

func TestAggregateAllNoCredentials(t *testing.T) {
	_, err := New(newBank(), fakeCreds{}, Config{}).AggregateAll(context.Background(), testWindow)
	if !errors.Is(err, api.ErrNoCredentials) {
		t.Errorf("no credentials: got %v, want ErrNoCredentials", err)
	}

	creds := fakeCreds{fakeCred{id: "a", err: errors.New("expired")}, fakeCred{id: "b", err: errors.New("expired")}}
	res, err := New(newBank(), creds, Config{}).AggregateAll(context.Background(), testWindow)
	if !errors.Is(err, api.ErrNoCredentials) {
		t.Errorf("all failed: got %v, want ErrNoCredentials", err)
	}
	if res == nil || !reflect.DeepEqual(res.NeedsReconnect, []string{"a", "b"}) {
		t.Errorf("all failed: want partial result listing both credentials, got %+v", res)
	}
}
