package eventstream

import (
	"context"
	"log/slog"
)

// Publisher publishes draft events to an event stream backend.
type Publisher interface {
	PublishDraft(ctx context.Context, event *DraftEvent) error
	Close() error
}

// Emit publishes event on p without failing the caller. The stream is a
// side channel: a draft decision stands whether or not its event lands, so
// failures are logged and dropped. A nil publisher is a no-op.
func Emit(ctx context.Context, p Publisher, log *slog.Logger, event *DraftEvent) {
	if p == nil {
		return
	}
	if err := p.PublishDraft(ctx, event); err != nil && log != nil {
		attrs := []any{"error", err}
		if event != nil {
			attrs = append(attrs, "event_type", event.EventType, "draft_key", event.Draft.Key)
		}
		log.Warn("failed to emit draft event", attrs...)
	}
}
