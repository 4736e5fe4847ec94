package api

// EventKind names a pipeline event.
type EventKind string

const (
	EventCredentialFailed EventKind = "credential_failed"
	EventItemsDiscovered  EventKind = "items_discovered"
	EventItemSkipped      EventKind = "item_skipped"
	EventUnsupported      EventKind = "unsupported"
	EventFetchFailed      EventKind = "fetch_failed"
	EventFetched          EventKind = "fetched"
	EventRecordRejected   EventKind = "record_rejected"
	EventPendingDropped   EventKind = "pending_dropped"
)

// Event is a structured diagnostic emitted by the aggregator.
type Event struct {
	Kind         EventKind
	CredentialID string
	ItemID       string
	Count        int
	Err          error
}

// Observer receives pipeline events. Implementations must be safe for concurrent use.
type Observer interface {
	Observe(Event)
}

// NopObserver discards events.
type NopObserver struct{}

// Observe does nothing.
func (NopObserver) Observe(Event) {}
