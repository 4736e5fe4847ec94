// Package aggregator collects transactions across every stored credential set.
//
// Work happens in four phases: item discovery per credential set, global item
// ownership, per item transaction fetches, and a deterministic merge. Discovery
// and fetches run concurrently; a failure is confined to the branch it came from.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ArionMiles/budgetbrief/pkg/api"
	"github.com/ArionMiles/budgetbrief/pkg/reconcile"
)

// DefaultMaxConcurrency bounds in-flight item fetches when Config leaves it unset.
const DefaultMaxConcurrency = 4

// Config controls which items are fetched and how many fetches run at once.
type Config struct {
	// ExcludedAccountIDs are never fetched, whichever credential set reports them.
	ExcludedAccountIDs []string
	MaxConcurrency     int
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithObserver sets the sink for pipeline events.
func WithObserver(o api.Observer) Option {
	return func(a *Aggregator) {
		if o != nil {
			a.observer = o
		}
	}
}

// Aggregator fans out over credential sets and items.
type Aggregator struct {
	client   api.BankClient
	creds    api.CredentialSource
	excluded map[string]struct{}
	limit    int
	observer api.Observer
}

// New creates an Aggregator.
func New(client api.BankClient, creds api.CredentialSource, cfg Config, opts ...Option) *Aggregator {
	a := &Aggregator{
		client:   client,
		creds:    creds,
		excluded: make(map[string]struct{}, len(cfg.ExcludedAccountIDs)),
		limit:    cfg.MaxConcurrency,
		observer: api.NopObserver{},
	}
	if a.limit <= 0 {
		a.limit = DefaultMaxConcurrency
	}
	for _, id := range cfg.ExcludedAccountIDs {
		a.excluded[id] = struct{}{}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result is everything one aggregation produced.
type Result struct {
	// Items are the owned items in credential order, then discovery order.
	Items []api.ConnectedItem `json:"items"`
	// Transactions follow Items order. Card posted entries precede pending ones.
	Transactions []api.Txn `json:"transactions"`
	// Rejected lists records dropped for bad data.
	Rejected []reconcile.Rejection `json:"-"`
	// Warnings describe branches that contributed nothing because of a failure.
	Warnings []string `json:"warnings,omitempty"`
	// NeedsReconnect lists credential sets whose token was refused.
	NeedsReconnect []string `json:"needs_reconnect,omitempty"`
}

// discovery is the phase one outcome for one credential set.
type discovery struct {
	cred     api.Credential
	token    string
	items    []api.ConnectedItem
	warnings []string
	err      error
}

// fetch is the phase three outcome for one owned item.
type fetch struct {
	posted   []api.Txn
	pending  []api.Txn
	rejected []reconcile.Rejection
	warnings []string
	credErr  bool
}

// AggregateAll collects every owned item's transactions for the window.
//
// It fails only when no credential set exists or none could list its items; in
// the latter case the returned Result still carries NeedsReconnect and Warnings.
func (a *Aggregator) AggregateAll(ctx context.Context, window api.DateWindow) (*Result, error) {
	creds, err := a.creds.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing credential sets: %w", err)
	}
	if len(creds) == 0 {
		return nil, api.ErrNoCredentials
	}

	discovered := a.discover(ctx, creds)

	res := &Result{}
	failed := 0
	for _, d := range discovered {
		res.Warnings = append(res.Warnings, d.warnings...)
		if d.err == nil {
			continue
		}
		failed++
		res.Warnings = append(res.Warnings, fmt.Sprintf("credential %s: %v", d.cred.ID(), d.err))
		var credErr *api.CredentialError
		if errors.As(d.err, &credErr) {
			res.NeedsReconnect = append(res.NeedsReconnect, d.cred.ID())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed == len(discovered) {
		return res, fmt.Errorf("%w: all %d credential sets failed", api.ErrNoCredentials, failed)
	}

	owned, tokens := a.assignOwnership(discovered)
	res.Items = owned

	fetched := a.fetchAll(ctx, owned, tokens, window)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reconnect := make(map[string]bool, len(res.NeedsReconnect))
	for _, id := range res.NeedsReconnect {
		reconnect[id] = true
	}
	for i, f := range fetched {
		res.Transactions = append(res.Transactions, f.posted...)
		res.Transactions = append(res.Transactions, f.pending...)
		res.Rejected = append(res.Rejected, f.rejected...)
		res.Warnings = append(res.Warnings, f.warnings...)
		if id := owned[i].CredentialID; f.credErr && !reconnect[id] {
			reconnect[id] = true
			res.NeedsReconnect = append(res.NeedsReconnect, id)
		}
	}
	return res, nil
}

// discover lists each credential set's items. The token is obtained before any
// listing call, so a refresh always completes before its set is used.
func (a *Aggregator) discover(ctx context.Context, creds []api.Credential) []discovery {
	out := make([]discovery, len(creds))
	var wg sync.WaitGroup
	for i, cred := range creds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = a.discoverOne(ctx, cred)
		}()
	}
	wg.Wait()
	return out
}

func (a *Aggregator) discoverOne(ctx context.Context, cred api.Credential) discovery {
	d := discovery{cred: cred}

	token, err := cred.Token(ctx)
	if err != nil {
		var credErr *api.CredentialError
		if !errors.As(err, &credErr) {
			err = &api.CredentialError{CredentialID: cred.ID(), Err: err}
		}
		d.err = err
		a.observer.Observe(api.Event{Kind: api.EventCredentialFailed, CredentialID: cred.ID(), Err: err})
		return d
	}
	d.token = token

	listers := []struct {
		kind api.ItemKind
		list func(context.Context, string) ([]api.ConnectedItem, error)
	}{
		{api.KindAccount, a.client.Accounts},
		{api.KindCard, a.client.Cards},
	}

	var failures []error
	for _, l := range listers {
		items, err := l.list(ctx, token)
		switch {
		case err == nil:
		case errors.Is(err, api.ErrUnsupported):
			a.observer.Observe(api.Event{Kind: api.EventUnsupported, CredentialID: cred.ID(), Err: err})
			continue
		default:
			var credErr *api.CredentialError
			if errors.As(err, &credErr) {
				d.err = err
				a.observer.Observe(api.Event{Kind: api.EventCredentialFailed, CredentialID: cred.ID(), Err: err})
				return d
			}
			failures = append(failures, fmt.Errorf("listing %ss: %w", l.kind, err))
			d.warnings = append(d.warnings, fmt.Sprintf("credential %s: listing %ss: %v", cred.ID(), l.kind, err))
			a.observer.Observe(api.Event{Kind: api.EventFetchFailed, CredentialID: cred.ID(), Err: err})
			continue
		}
		for _, item := range items {
			item.Kind = l.kind
			item.CredentialID = cred.ID()
			d.items = append(d.items, item)
		}
	}

	if len(failures) == len(listers) {
		d.warnings = nil
		d.err = errors.Join(failures...)
		return d
	}
	a.observer.Observe(api.Event{Kind: api.EventItemsDiscovered, CredentialID: cred.ID(), Count: len(d.items)})
	return d
}

// assignOwnership gives each item ID to the first credential set that reported it.
func (a *Aggregator) assignOwnership(discovered []discovery) ([]api.ConnectedItem, map[string]string) {
	seen := make(map[string]struct{})
	tokens := make(map[string]string)
	var owned []api.ConnectedItem

	for _, d := range discovered {
		if d.err != nil {
			continue
		}
		tokens[d.cred.ID()] = d.token
		for _, item := range d.items {
			if _, skip := a.excluded[item.ID]; skip {
				a.observer.Observe(api.Event{Kind: api.EventItemSkipped, CredentialID: d.cred.ID(), ItemID: item.ID})
				continue
			}
			if _, dup := seen[item.ID]; dup {
				a.observer.Observe(api.Event{Kind: api.EventItemSkipped, CredentialID: d.cred.ID(), ItemID: item.ID})
				continue
			}
			seen[item.ID] = struct{}{}
			owned = append(owned, item)
		}
	}
	return owned, tokens
}

func (a *Aggregator) fetchAll(ctx context.Context, items []api.ConnectedItem, tokens map[string]string, window api.DateWindow) []fetch {
	out := make([]fetch, len(items))
	sem := make(chan struct{}, a.limit)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			out[i] = a.fetchItem(ctx, item, tokens[item.CredentialID], window)
		}()
	}
	wg.Wait()
	return out
}

func (a *Aggregator) fetchItem(ctx context.Context, item api.ConnectedItem, token string, window api.DateWindow) fetch {
	if item.Kind != api.KindCard {
		var f fetch
		f.posted = a.fetchFeed(ctx, &f, item, token, window, api.StatusPosted)
		return f
	}

	// Posted and pending are independent; merge once both are in.
	var posted, pending fetch
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pending.pending = a.fetchFeed(ctx, &pending, item, token, window, api.StatusPending)
	}()
	posted.posted = a.fetchFeed(ctx, &posted, item, token, window, api.StatusPosted)
	wg.Wait()

	f := fetch{
		rejected: append(posted.rejected, pending.rejected...),
		warnings: append(posted.warnings, pending.warnings...),
		credErr:  posted.credErr || pending.credErr,
	}
	f.posted, f.pending = reconcile.MergeCardTransactions(posted.posted, pending.pending, item.ID, item.Provider)
	if dropped := len(pending.pending) - len(f.pending); dropped > 0 {
		a.observer.Observe(api.Event{Kind: api.EventPendingDropped, CredentialID: item.CredentialID, ItemID: item.ID, Count: dropped})
	}
	return f
}

// fetchFeed fetches and normalizes one feed. Failures leave the feed empty and
// are recorded on f.
func (a *Aggregator) fetchFeed(ctx context.Context, f *fetch, item api.ConnectedItem, token string, window api.DateWindow, status api.Status) []api.Txn {
	raws, err := a.client.Transactions(ctx, token, item, window, status == api.StatusPending)
	if err != nil {
		if errors.Is(err, api.ErrUnsupported) {
			a.observer.Observe(api.Event{Kind: api.EventUnsupported, CredentialID: item.CredentialID, ItemID: item.ID, Err: err})
			return nil
		}
		var credErr *api.CredentialError
		if errors.As(err, &credErr) {
			f.credErr = true
		}
		f.warnings = append(f.warnings, fmt.Sprintf("%s %s (%s transactions): %v", item.Kind, item.ID, status, err))
		a.observer.Observe(api.Event{Kind: api.EventFetchFailed, CredentialID: item.CredentialID, ItemID: item.ID, Err: err})
		return nil
	}

	txns, rejected := reconcile.NormalizeAll(raws, item, status)
	for _, r := range rejected {
		a.observer.Observe(api.Event{Kind: api.EventRecordRejected, CredentialID: item.CredentialID, ItemID: item.ID, Err: r.Err})
	}
	f.rejected = append(f.rejected, rejected...)
	a.observer.Observe(api.Event{Kind: api.EventFetched, CredentialID: item.CredentialID, ItemID: item.ID, Count: len(txns)})
	return txns
}
