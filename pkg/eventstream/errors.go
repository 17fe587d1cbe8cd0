package eventstream

import (
	"errors"
	"fmt"
)

var (
	// ErrNilDraftEvent indicates a nil draft event payload was provided to a publisher.
	ErrNilDraftEvent = errors.New("nil draft event")

	// ErrInvalidDraftEvent wraps every other payload a publisher refuses.
	ErrInvalidDraftEvent = errors.New("invalid draft event")
)

// Validate checks that event can be published: a known type, a draft key to
// partition on and the current schema version.
func Validate(event *DraftEvent) error {
	if event == nil {
		return ErrNilDraftEvent
	}
	switch event.EventType {
	case EventTypeDraftScored, EventTypeDraftPublished:
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidDraftEvent, event.EventType)
	}
	if event.Draft.Key == "" {
		return fmt.Errorf("%w: missing draft key", ErrInvalidDraftEvent)
	}
	if event.SchemaVersion != SchemaVersionV1 {
		return fmt.Errorf("%w: unsupported schema version %d", ErrInvalidDraftEvent, event.SchemaVersion)
	}
	return nil
}
