package logging

import (
	"context"
	"log/slog"

	"github.com/ArionMiles/budgetbrief/pkg/api"
)

// Observer writes aggregator events to a slog.Logger.
type Observer struct {
	logger *slog.Logger
}

// NewObserver creates an Observer. A nil logger uses slog.Default.
func NewObserver(logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{logger: logger.With("component", "aggregator")}
}

// Observe logs e at a level matching its kind.
func (o *Observer) Observe(e api.Event) {
	attrs := []slog.Attr{slog.String("event", string(e.Kind))}
	if e.CredentialID != "" {
		attrs = append(attrs, slog.String("credential", e.CredentialID))
	}
	if e.ItemID != "" {
		attrs = append(attrs, slog.String("item", e.ItemID))
	}
	if e.Count > 0 {
		attrs = append(attrs, slog.Int("count", e.Count))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.Any("error", e.Err))
	}
	o.logger.LogAttrs(context.Background(), eventLevel(e.Kind), eventMessage(e.Kind), attrs...)
}

func eventLevel(kind api.EventKind) slog.Level {
	switch kind {
	case api.EventCredentialFailed, api.EventFetchFailed, api.EventRecordRejected:
		return slog.LevelWarn
	case api.EventItemsDiscovered:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func eventMessage(kind api.EventKind) string {
	switch kind {
	case api.EventCredentialFailed:
		return "credential set failed, reconnect required"
	case api.EventItemsDiscovered:
		return "discovered connected items"
	case api.EventItemSkipped:
		return "skipping item"
	case api.EventUnsupported:
		return "endpoint not supported by provider"
	case api.EventFetchFailed:
		return "fetch failed"
	case api.EventFetched:
		return "fetched transactions"
	case api.EventRecordRejected:
		return "rejected transaction record"
	case api.EventPendingDropped:
		return "dropped settled pending transactions"
	default:
		return string(kind)
	}
}
