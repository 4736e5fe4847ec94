package truelayer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/budgetbrief/pkg/api"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:           srv.URL,
		HTTPClient:        srv.Client(),
		RequestsPerSecond: 1000,
		RetryAttempts:     3,
		RetryDelay:        time.Millisecond,
	}, nil)
}

var week = api.DateWindow{
	From: time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC),
	To:   time.Date(2025, 11, 27, 0, 0, 0, 0, time.UTC),
	Mode: api.ModeWeekly,
}

func TestAccountsAndCards(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /data/v1/accounts", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization: got %q", got)
		}
		fmt.Fprint(w, `{"results":[
			{"account_id":"acc-1","display_name":"Current","currency":"GBP","provider":{"provider_id":"ob-monzo","display_name":"Monzo"}},
			{"display_name":"no id"}
		],"status":"Succeeded"}`)
	})
	mux.HandleFunc("GET /data/v1/cards", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"results":[{"account_id":"card-1","display_name":"Amex Gold","currency":"GBP","provider":{"display_name":"American Express"}}]}`)
	})
	c := newTestClient(t, mux)

	accounts, err := c.Accounts(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("accounts: got %d, want 1", len(accounts))
	}
	want := api.ConnectedItem{Kind: api.KindAccount, ID: "acc-1", Provider: "ob-monzo", DisplayName: "Current", Currency: "GBP"}
	if accounts[0] != want {
		t.Errorf("account: got %+v, want %+v", accounts[0], want)
	}

	cards, err := c.Cards(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Cards: %v", err)
	}
	if len(cards) != 1 || cards[0].Kind != api.KindCard || cards[0].Provider != "American Express" {
		t.Errorf("cards: got %+v", cards)
	}
}

func TestTransactions(t *testing.T) {
	var gotPath, gotFrom, gotTo string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		fmt.Fprint(w, `{"results":[
			{"transaction_id":"t1","timestamp":"2025-11-24T00:00:00+00:00","description":"TESCO STORES","amount":45.5,"currency":"GBP","merchant_name":"Tesco","transaction_category":"PURCHASE"},
			{"transaction_id":"t2","timestamp":"2025-11-25T00:00:00+00:00","description":"mystery"},
			{"transaction_id":"t3","timestamp":"2025-11-25T00:00:00+00:00","amount":"12.10"}
		]}`)
	})
	c := newTestClient(t, h)

	card := api.ConnectedItem{Kind: api.KindCard, ID: "card-1"}
	txns, err := c.Transactions(context.Background(), "tok", card, week, true)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}

	if gotPath != "/data/v1/cards/card-1/transactions/pending" {
		t.Errorf("path: got %q", gotPath)
	}
	if gotFrom != "2025-11-20" || gotTo != "2025-11-26" {
		t.Errorf("query: got from=%s to=%s, want 2025-11-20..2025-11-26", gotFrom, gotTo)
	}
	if len(txns) != 3 {
		t.Fatalf("transactions: got %d, want 3", len(txns))
	}

	first := txns[0]
	if !first.Amount.Valid || !first.Amount.Decimal.Equal(decimal.RequireFromString("45.5")) {
		t.Errorf("amount: got %+v", first.Amount)
	}
	if first.MerchantName != "Tesco" || first.Category != "PURCHASE" || len(first.Raw) == 0 {
		t.Errorf("fields: got %+v", first)
	}
	if txns[1].Amount.Valid {
		t.Error("missing amount should not be valid")
	}
	if !txns[2].Amount.Valid || !txns[2].Amount.Decimal.Equal(decimal.RequireFromString("12.10")) {
		t.Errorf("string amount: got %+v", txns[2].Amount)
	}
}

func TestTransactionsAccountPath(t *testing.T) {
	var gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"results":[]}`)
	}))

	if _, err := c.Transactions(context.Background(), "tok", api.ConnectedItem{Kind: api.KindAccount, ID: "acc-1"}, week, false); err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if gotPath != "/data/v1/accounts/acc-1/transactions" {
		t.Errorf("path: got %q", gotPath)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error":"invalid_token"}`,
			check: func(err error) bool {
				var ce *api.CredentialError
				return errors.As(err, &ce)
			},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			check: func(err error) bool {
				var ce *api.CredentialError
				return errors.As(err, &ce)
			},
		},
		{
			name:   "not implemented",
			status: http.StatusNotImplemented,
			check:  func(err error) bool { return errors.Is(err, api.ErrUnsupported) },
		},
		{
			name:   "endpoint not supported code",
			status: http.StatusBadRequest,
			body:   `{"error":"endpoint_not_supported","error_description":"Feature not supported by the provider"}`,
			check:  func(err error) bool { return errors.Is(err, api.ErrUnsupported) },
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   `{"error":"invalid_date_range"}`,
			check: func(err error) bool {
				var se *StatusError
				return errors.As(err, &se) && se.Code == "invalid_date_range"
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))

			_, err := c.Accounts(context.Background(), "tok")
			if err == nil || !tc.check(err) {
				t.Errorf("got %v", err)
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("calls: got %d, want 1 (no retry)", n)
			}
		})
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			fmt.Fprint(w, `{"results":[{"account_id":"acc-1"}]}`)
		}
	}))

	items, err := c.Accounts(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || calls.Load() != 3 {
		t.Errorf("got %d items after %d calls", len(items), calls.Load())
	}
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.Accounts(context.Background(), "tok")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("got %v, want 503 StatusError", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls: got %d, want 3", calls.Load())
	}
}

func TestOAuthConfig(t *testing.T) {
	cfg := OAuthConfig("id", "secret", "https://auth.example.com/", "http://localhost:8085/callback")
	if cfg.Endpoint.TokenURL != "https://auth.example.com/connect/token" {
		t.Errorf("token url: got %q", cfg.Endpoint.TokenURL)
	}
	if cfg.Endpoint.AuthURL != "https://auth.example.com/" {
		t.Errorf("auth url: got %q", cfg.Endpoint.AuthURL)
	}
}
