// Package api serves the presence event store read-only over HTTP: drafts,
// templates, commit attribution and an MCP endpoint for assistants.
package api

import "time"

// DefaultMaxDrafts caps GET /drafts when the config leaves MaxDrafts unset.
const DefaultMaxDrafts = 200

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on, e.g. ":8082".
	ListenAddr string

	// MaxDrafts bounds one GET /drafts response. A larger ?limit= is
	// clamped to it.
	MaxDrafts int

	// ReadTimeout bounds reading one request. Zero leaves fiber's default.
	ReadTimeout time.Duration
}

func (c Config) maxDrafts() int {
	if c.MaxDrafts <= 0 {
		return DefaultMaxDrafts
	}
	return c.MaxDrafts
}
