// Package truelayer implements api.BankClient against the TrueLayer Data API.
package truelayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/ArionMiles/budgetbrief/pkg/api"
)

// Default client settings.
const (
	DefaultBaseURL           = "https://api.truelayer.com"
	DefaultRequestsPerSecond = 5
	DefaultRetryAttempts     = 3
	DefaultRetryDelay        = 2 * time.Second
	DefaultTimeout           = 30 * time.Second
)

// errorCodeUnsupported is returned by providers that lack an endpoint.
const errorCodeUnsupported = "endpoint_not_supported"

// Config holds configuration for the TrueLayer client.
type Config struct {
	// BaseURL is the Data API root. Defaults to DefaultBaseURL.
	BaseURL string
	// HTTPClient is used for every call. Defaults to a client with DefaultTimeout.
	HTTPClient *http.Client
	// RequestsPerSecond caps outbound calls across all credential sets.
	RequestsPerSecond float64
	// RetryAttempts covers 429 and 5xx responses.
	RetryAttempts uint
	// RetryDelay is the initial backoff between attempts.
	RetryDelay time.Duration
}

// Client talks to the Data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	attempts   uint
	delay      time.Duration
	logger     *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1),
		attempts:   cfg.RetryAttempts,
		delay:      cfg.RetryDelay,
		logger:     logger,
	}
}

type provider struct {
	ID          string `json:"provider_id"`
	DisplayName string `json:"display_name"`
}

type item struct {
	AccountID   string   `json:"account_id"`
	DisplayName string   `json:"display_name"`
	Currency    string   `json:"currency"`
	Provider    provider `json:"provider"`
}

type transaction struct {
	TransactionID string      `json:"transaction_id"`
	Timestamp     string      `json:"timestamp"`
	Description   string      `json:"description"`
	Amount        json.Number `json:"amount"`
	Currency      string      `json:"currency"`
	MerchantName  string      `json:"merchant_name"`
	Category      string      `json:"transaction_category"`
}

type envelope struct {
	Results []json.RawMessage `json:"results"`
}

type apiError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// StatusError is a non-success response that is neither a credential problem
// nor an unsupported endpoint.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("truelayer: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("truelayer: status %d", e.StatusCode)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Accounts lists the bank accounts behind token.
func (c *Client) Accounts(ctx context.Context, token string) ([]api.ConnectedItem, error) {
	return c.items(ctx, token, "accounts", api.KindAccount)
}

// Cards lists the cards behind token.
func (c *Client) Cards(ctx context.Context, token string) ([]api.ConnectedItem, error) {
	return c.items(ctx, token, "cards", api.KindCard)
}

func (c *Client) items(ctx context.Context, token, path string, kind api.ItemKind) ([]api.ConnectedItem, error) {
	results, err := c.get(ctx, token, "/data/v1/"+path, nil)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}

	items := make([]api.ConnectedItem, 0, len(results))
	for _, raw := range results {
		var it item
		if err := json.Unmarshal(raw, &it); err != nil || it.AccountID == "" {
			c.logger.Warn("skipping malformed item", "path", path, "error", err)
			continue
		}
		p := it.Provider.ID
		if p == "" {
			p = it.Provider.DisplayName
		}
		items = append(items, api.ConnectedItem{
			Kind:        kind,
			ID:          it.AccountID,
			Provider:    p,
			DisplayName: it.DisplayName,
			Currency:    it.Currency,
		})
	}
	return items, nil
}

// Transactions fetches the posted or pending transactions of one item in window.
func (c *Client) Transactions(ctx context.Context, token string, it api.ConnectedItem, window api.DateWindow, pending bool) ([]api.RawTransaction, error) {
	collection := "accounts"
	if it.Kind == api.KindCard {
		collection = "cards"
	}
	path := fmt.Sprintf("/data/v1/%s/%s/transactions", collection, url.PathEscape(it.ID))
	if pending {
		path += "/pending"
	}

	// The API treats both bounds as inclusive days.
	q := url.Values{}
	q.Set("from", window.From.Format(api.DateLayout))
	q.Set("to", window.LastDay().Format(api.DateLayout))

	results, err := c.get(ctx, token, path, q)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s transactions: %w", it.Kind, it.ID, err)
	}

	txns := make([]api.RawTransaction, 0, len(results))
	for _, raw := range results {
		txns = append(txns, decodeTransaction(raw))
	}
	return txns, nil
}

// decodeTransaction never fails; fields it cannot read stay empty so the
// normalizer rejects the record.
func decodeTransaction(raw json.RawMessage) api.RawTransaction {
	var t transaction
	out := api.RawTransaction{Raw: raw}
	if err := json.Unmarshal(raw, &t); err != nil {
		return out
	}
	out.TransactionID = t.TransactionID
	out.Timestamp = t.Timestamp
	out.Description = t.Description
	out.Currency = t.Currency
	out.MerchantName = t.MerchantName
	out.Category = t.Category
	if d, err := decimal.NewFromString(t.Amount.String()); err == nil {
		out.Amount = decimal.NewNullDecimal(d)
	}
	return out
}

func (c *Client) get(ctx context.Context, token, path string, query url.Values) ([]json.RawMessage, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var results []json.RawMessage
	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			var err error
			results, err = c.do(ctx, token, u)
			return err
		},
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) && se.retryable() {
				c.logger.Warn("truelayer request failed, will retry", "path", path, "status", se.StatusCode)
				return true
			}
			return false
		}),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.LastErrorOnly(true),
	)
	return results, err
}

func (c *Client) do(ctx context.Context, token, u string) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp.StatusCode, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return env.Results, nil
}

func classify(status int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)

	switch {
	case status == http.StatusNotImplemented || ae.Code == errorCodeUnsupported:
		if ae.Description == "" {
			return api.ErrUnsupported
		}
		return fmt.Errorf("%w: %s", api.ErrUnsupported, ae.Description)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &api.CredentialError{Err: &StatusError{StatusCode: status, Code: ae.Code, Message: ae.Description}}
	default:
		return &StatusError{StatusCode: status, Code: ae.Code, Message: ae.Description}
	}
}
