// Package publish sends approved drafts to their channel and records where
// they landed. A draft is published at most once: the store refuses a second
// location, and a failed publish leaves the draft approved-unpublished for
// the retry pass.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/eventstream"
	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/storage"
	"github.com/papercomputeco/presence/pkg/synth"
)

var (
	// ErrPublish wraps a failed channel call. The draft stays in the retry set.
	ErrPublish = errors.New("publish failed")

	// ErrRateLimited is returned by channels that were throttled. The retry
	// pass stops at the first one.
	ErrRateLimited = errors.New("rate limited")

	// ErrNoChannel is returned when the draft's channel is not configured.
	ErrNoChannel = errors.New("no channel configured")
)

// Social posts to a social network and returns the post URL.
type Social interface {
	Post(ctx context.Context, text string) (string, error)

	// PostThread posts texts as a reply chain and returns the URL of the
	// first post.
	PostThread(ctx context.Context, texts []string) (string, error)
}

// Blog writes an article and returns its public URL.
type Blog interface {
	WritePost(ctx context.Context, body string) (string, error)
}

// Indexer receives published drafts for knowledge recall.
type Indexer interface {
	Index(ctx context.Context, d activity.ContentDraft) error
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithSocial sets the channel for posts and threads.
func WithSocial(s Social) Option {
	return func(p *Publisher) { p.social = s }
}

// WithBlog sets the channel for articles.
func WithBlog(b Blog) Option {
	return func(p *Publisher) { p.blog = b }
}

// WithEvents publishes a draft event after each recorded publication.
func WithEvents(e eventstream.Publisher) Option {
	return func(p *Publisher) { p.events = e }
}

// WithIndexer indexes each recorded publication.
func WithIndexer(i Indexer) Option {
	return func(p *Publisher) { p.indexer = i }
}

// WithTimeout bounds each channel call.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) { p.timeout = d }
}

// WithRetryDelay spaces publish attempts in the retry pass.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Publisher) { p.retryDelay = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// Publisher routes approved drafts to their channel.
type Publisher struct {
	store      storage.DraftStore
	social     Social
	blog       Blog
	events     eventstream.Publisher
	indexer    Indexer
	timeout    time.Duration
	retryDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// New returns a Publisher writing outcomes to store.
func New(store storage.DraftStore, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends d to its channel and records the location. It refuses drafts
// that are not approved or already published. The attempt is recorded
// before the channel is called.
func (p *Publisher) Publish(ctx context.Context, d activity.ContentDraft) (string, error) {
	switch {
	case !d.Scored || !d.Approved:
		return "", fmt.Errorf("draft %s: %w", d.Key, storage.ErrNotApproved)
	case d.Published():
		return "", fmt.Errorf("draft %s: %w", d.Key, storage.ErrAlreadyPublished)
	}

	if err := p.store.RecordPublishAttempt(ctx, d.ID, p.now()); err != nil {
		return "", fmt.Errorf("recording publish attempt for %s: %w", d.Key, err)
	}

	location, err := p.send(ctx, d)
	if err != nil {
		p.logger.Warn("publish failed", "draft_key", d.Key, "type", d.Type, "error", err)
		return "", fmt.Errorf("%w: draft %s: %w", ErrPublish, d.Key, err)
	}

	at := p.now()
	if err := p.store.MarkPublished(ctx, d.ID, location, at); err != nil {
		p.logger.Error("published but failed to record location, reconcile manually",
			"draft_id", d.ID,
			"draft_key", d.Key,
			"location", location,
			"error", err,
		)
		return location, fmt.Errorf("recording publication of %s at %s: %w", d.Key, location, err)
	}

	d.PublishedLocation = location
	d.PublishedAt = &at
	p.logger.Info("published draft", "draft_key", d.Key, "type", d.Type, "location", location)
	p.afterPublish(ctx, d)

	return location, nil
}

func (p *Publisher) send(ctx context.Context, d activity.ContentDraft) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	switch d.Type {
	case activity.ContentPost:
		if p.social == nil {
			return "", fmt.Errorf("%w for %s", ErrNoChannel, d.Type)
		}
		return p.social.Post(ctx, d.Body)
	case activity.ContentThread:
		if p.social == nil {
			return "", fmt.Errorf("%w for %s", ErrNoChannel, d.Type)
		}
		tweets := synth.SplitThread(d.Body)
		if len(tweets) == 0 {
			return "", errors.New("thread has no posts")
		}
		return p.social.PostThread(ctx, tweets)
	case activity.ContentArticle:
		if p.blog == nil {
			return "", fmt.Errorf("%w for %s", ErrNoChannel, d.Type)
		}
		return p.blog.WritePost(ctx, d.Body)
	default:
		return "", fmt.Errorf("unknown content type %q", d.Type)
	}
}

func (p *Publisher) afterPublish(ctx context.Context, d activity.ContentDraft) {
	if p.events != nil {
		eventstream.Emit(ctx, p.events, p.logger,
			eventstream.NewDraftEvent(eventstream.EventTypeDraftPublished, "", d, p.now()))
	}
	if p.indexer != nil {
		if err := p.indexer.Index(ctx, d); err != nil {
			p.logger.Warn("failed to index published draft", "draft_key", d.Key, "error", err)
		}
	}
}

// RetrySummary counts the outcome of a retry pass.
type RetrySummary struct {
	Queued      int
	Attempted   int
	Published   int
	Failed      int
	RateLimited bool
}

// Retry attempts every approved-unpublished draft once, oldest first. It
// stops early on a rate-limit error or cancellation; the remaining drafts
// stay queued for the next pass.
func (p *Publisher) Retry(ctx context.Context) (RetrySummary, error) {
	var sum RetrySummary

	queue, err := p.store.UnpublishedApprovedDrafts(ctx)
	if err != nil {
		return sum, fmt.Errorf("listing unpublished drafts: %w", err)
	}
	sum.Queued = len(queue)

	for i, d := range queue {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if i > 0 && p.retryDelay > 0 {
			if err := sleep(ctx, p.retryDelay); err != nil {
				return sum, err
			}
		}

		sum.Attempted++
		if _, err := p.Publish(ctx, d); err != nil {
			sum.Failed++
			if errors.Is(err, ErrRateLimited) {
				sum.RateLimited = true
				p.logger.Warn("rate limited, stopping retry pass",
					"draft_key", d.Key,
					"remaining", len(queue)-i-1,
				)
				break
			}
			continue
		}
		sum.Published++
	}

	return sum, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
