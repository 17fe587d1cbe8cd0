// Package nop is the event stream used when no backend is configured. It
// checks payloads like a real backend would and then drops them.
package nop

import (
	"context"

	"github.com/papercomputeco/presence/pkg/eventstream"
)

// Publisher validates and discards draft events.
type Publisher struct{}

var _ eventstream.Publisher = (*Publisher)(nil)

func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishDraft returns the validation error for event, if any.
func (p *Publisher) PublishDraft(_ context.Context, event *eventstream.DraftEvent) error {
	return eventstream.Validate(event)
}

func (p *Publisher) Close() error {
	return nil
}
