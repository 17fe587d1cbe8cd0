// Package ingest polls the commit and prompt sources and records new events
// in the store. It is the only reader and writer of the poll checkpoints.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/storage"
)

// ErrSource wraps a failed source read. The source is skipped for the pass
// and its checkpoint is left where it was.
var ErrSource = errors.New("ingestion source failed")

const (
	// CheckpointCommits is the cursor for the commit source.
	CheckpointCommits = "commits"

	// CheckpointPrompts is the cursor for the prompt source.
	CheckpointPrompts = "prompts"

	// DefaultFirstPollWindow is how far back the first poll looks.
	DefaultFirstPollWindow = 90 * time.Minute
)

// CommitSource lists commits made at or after since.
type CommitSource interface {
	ListCommits(ctx context.Context, since time.Time) ([]activity.CommitEvent, error)
}

// PromptSource lists prompts recorded at or after since.
type PromptSource interface {
	ListPromptEvents(ctx context.Context, since time.Time) ([]activity.PromptEvent, error)
}

// Result counts one poll.
type Result struct {
	// Since is the earliest lower bound used across sources.
	Since time.Time

	Commits    int
	NewCommits int
	Prompts    int
	NewPrompts int
}

// Ingester polls sources into a store.
type Ingester struct {
	store     storage.Driver
	commits   CommitSource
	prompts   PromptSource
	firstPoll time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithFirstPollWindow sets how far back a source with no checkpoint looks.
func WithFirstPollWindow(d time.Duration) Option {
	return func(i *Ingester) { i.firstPoll = d }
}

// WithTimeout bounds each source read.
func WithTimeout(d time.Duration) Option {
	return func(i *Ingester) { i.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Ingester) { i.logger = l }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Ingester) { i.now = now }
}

// New returns an Ingester. Either source may be nil.
func New(store storage.Driver, commits CommitSource, prompts PromptSource, opts ...Option) *Ingester {
	i := &Ingester{
		store:     store,
		commits:   commits,
		prompts:   prompts,
		firstPoll: DefaultFirstPollWindow,
		logger:    logger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Poll reads every source from its checkpoint and records the events. A
// failing source does not stop the others; its error wraps ErrSource and is
// joined into the returned error alongside a usable Result.
func (i *Ingester) Poll(ctx context.Context) (Result, error) {
	now := activity.Normalize(i.now())
	res := Result{Since: now}
	var errs []error

	if i.commits != nil {
		since, err := i.since(ctx, CheckpointCommits, now)
		if err != nil {
			return res, err
		}
		res.Since = minTime(res.Since, since)

		commits, err := i.readCommits(ctx, since)
		if err != nil {
			errs = append(errs, err)
		} else {
			res.Commits = len(commits)
			for _, c := range commits {
				stored, err := i.store.RecordCommit(ctx, c)
				if err != nil {
					return res, fmt.Errorf("recording commit %s: %w", c.SHA, err)
				}
				if stored {
					res.NewCommits++
				}
			}
			if err := i.store.AdvanceCheckpoint(ctx, CheckpointCommits, now); err != nil {
				return res, fmt.Errorf("advancing commit checkpoint: %w", err)
			}
		}
	}

	if i.prompts != nil {
		since, err := i.since(ctx, CheckpointPrompts, now)
		if err != nil {
			return res, err
		}
		res.Since = minTime(res.Since, since)

		prompts, err := i.readPrompts(ctx, since)
		if err != nil {
			errs = append(errs, err)
		} else {
			res.Prompts = len(prompts)
			for _, p := range prompts {
				stored, err := i.store.RecordPrompt(ctx, p)
				if err != nil {
					return res, fmt.Errorf("recording prompt %s: %w", p.UUID, err)
				}
				if stored {
					res.NewPrompts++
				}
			}
			if err := i.store.AdvanceCheckpoint(ctx, CheckpointPrompts, now); err != nil {
				return res, fmt.Errorf("advancing prompt checkpoint: %w", err)
			}
		}
	}

	i.logger.Info("ingested events",
		"since", res.Since,
		"commits", res.Commits,
		"new_commits", res.NewCommits,
		"prompts", res.Prompts,
		"new_prompts", res.NewPrompts,
	)
	return res, errors.Join(errs...)
}

func (i *Ingester) since(ctx context.Context, name string, now time.Time) (time.Time, error) {
	t, ok, err := i.store.Checkpoint(ctx, name)
	if err != nil {
		return time.Time{}, fmt.Errorf("reading %s checkpoint: %w", name, err)
	}
	if !ok {
		return now.Add(-i.firstPoll), nil
	}
	return t, nil
}

func (i *Ingester) readCommits(ctx context.Context, since time.Time) ([]activity.CommitEvent, error) {
	ctx, cancel := i.bound(ctx)
	defer cancel()
	commits, err := i.commits.ListCommits(ctx, since)
	if err != nil {
		i.logger.Warn("commit source failed, skipping this pass", "error", err)
		return nil, fmt.Errorf("%w: commits: %w", ErrSource, err)
	}
	return commits, nil
}

func (i *Ingester) readPrompts(ctx context.Context, since time.Time) ([]activity.PromptEvent, error) {
	ctx, cancel := i.bound(ctx)
	defer cancel()
	prompts, err := i.prompts.ListPromptEvents(ctx, since)
	if err != nil {
		i.logger.Warn("prompt source failed, skipping this pass", "error", err)
		return nil, fmt.Errorf("%w: prompts: %w", ErrSource, err)
	}
	return prompts, nil
}

func (i *Ingester) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.timeout > 0 {
		return context.WithTimeout(ctx, i.timeout)
	}
	return context.WithCancel(ctx)
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
