// Package pipeline runs the presence passes: per-commit, daily, weekly and
// retry. Each pass reads the store, correlates, synthesizes, gates and
// publishes, and is idempotent against the store so that overlapping or
// repeated runs do no harm.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/correlate"
	"github.com/papercomputeco/presence/pkg/dotdir"
	"github.com/papercomputeco/presence/pkg/eventstream"
	"github.com/papercomputeco/presence/pkg/gate"
	"github.com/papercomputeco/presence/pkg/ingest"
	"github.com/papercomputeco/presence/pkg/knowledge"
	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/publish"
	"github.com/papercomputeco/presence/pkg/storage"
	"github.com/papercomputeco/presence/pkg/synth"
)

// DefaultLookback is how far before the ingestion cursor the per-commit pass
// looks for commits no unit has consumed yet.
const DefaultLookback = 24 * time.Hour

// Recaller finds earlier published work related to a query.
type Recaller interface {
	Recall(ctx context.Context, query string, exclude ...string) ([]string, error)
}

// Config wires a Pipeline. Store, Correlator, Synthesizer and Gate are
// required.
type Config struct {
	Store       storage.Driver
	Ingester    *ingest.Ingester
	Correlator  *correlate.Correlator
	Synthesizer *synth.Synthesizer
	Gate        *gate.Gate

	// Publisher publishes approved drafts as soon as they are saved. Nil
	// leaves them queued for a later retry pass.
	Publisher *publish.Publisher

	Recall Recaller
	Events eventstream.Publisher

	// BatchCommits folds all new commits of a per-commit pass into one post.
	BatchCommits bool

	// DrainQueueFirst publishes the oldest queued post before new work and
	// limits the pass to one post; later approved drafts stay queued.
	DrainQueueFirst bool

	// Lookback defaults to DefaultLookback.
	Lookback time.Duration

	// RecordPass persists each pass outcome. Optional.
	RecordPass func(pass string, rec dotdir.PassRecord) error

	Logger *slog.Logger
	Now    func() time.Time
}

// Pipeline runs passes.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New validates c and returns a Pipeline.
func New(c Config) (*Pipeline, error) {
	switch {
	case c.Store == nil:
		return nil, errors.New("pipeline requires a store")
	case c.Correlator == nil:
		return nil, errors.New("pipeline requires a correlator")
	case c.Synthesizer == nil:
		return nil, errors.New("pipeline requires a synthesizer")
	case c.Gate == nil:
		return nil, errors.New("pipeline requires a gate")
	}
	if c.Lookback == 0 {
		c.Lookback = DefaultLookback
	}
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{cfg: c, logger: log, now: now}, nil
}

// Run dispatches to the named pass. at selects the day or week for digest
// passes and is ignored otherwise.
func (p *Pipeline) Run(ctx context.Context, pass Pass, at time.Time) (Summary, error) {
	switch pass {
	case PassCommit:
		return p.RunPerCommit(ctx)
	case PassDaily:
		return p.RunDaily(ctx, at)
	case PassWeekly:
		return p.RunWeekly(ctx, at)
	case PassRetry:
		return p.RunRetry(ctx)
	default:
		return Summary{}, fmt.Errorf("unknown pass %q", pass)
	}
}

// RunPerCommit ingests new events and turns each unconsumed commit into a
// post, or all of them into one post when batching.
func (p *Pipeline) RunPerCommit(ctx context.Context) (sum Summary, err error) {
	sum = p.begin(PassCommit, "")
	defer func() { p.finish(&sum, err) }()

	since, err := p.ingest(ctx, &sum)
	if err != nil {
		return sum, err
	}

	if p.cfg.DrainQueueFirst {
		if err := p.drainOne(ctx, &sum); err != nil {
			return sum, err
		}
	}

	commits, err := p.cfg.Store.FindUnlinkedCommitsSince(ctx, since)
	if err != nil {
		return sum, fmt.Errorf("finding unlinked commits: %w", err)
	}
	if len(commits) == 0 {
		p.logger.Info("no new commits")
		return sum, nil
	}

	tmpl, err := p.template(ctx, activity.ContentPost)
	if err != nil {
		return sum, err
	}

	if p.cfg.BatchCommits {
		var units []activity.Unit
		for _, c := range commits {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			u, ok := p.correlate(ctx, c, &sum)
			if ok {
				units = append(units, u)
			}
		}
		if len(units) == 0 {
			return sum, nil
		}
		err = p.processUnits(ctx, &sum, workItem{
			Type:     activity.ContentPost,
			Units:    units,
			Template: tmpl,
			Consume:  true,
		})
		return sum, err
	}

	for _, c := range commits {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		u, ok := p.correlate(ctx, c, &sum)
		if !ok {
			continue
		}
		if err := p.processUnits(ctx, &sum, workItem{
			Type:     activity.ContentPost,
			Units:    []activity.Unit{u},
			Template: tmpl,
			Consume:  true,
		}); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// RunDaily writes one thread covering the UTC day containing day.
func (p *Pipeline) RunDaily(ctx context.Context, day time.Time) (Summary, error) {
	start, end, period := DayBounds(day)
	return p.runDigest(ctx, PassDaily, activity.ContentThread, start, end, period)
}

// RunWeekly writes one article covering the ISO week containing day.
func (p *Pipeline) RunWeekly(ctx context.Context, day time.Time) (Summary, error) {
	start, end, period := WeekBounds(day)
	return p.runDigest(ctx, PassWeekly, activity.ContentArticle, start, end, period)
}

func (p *Pipeline) runDigest(ctx context.Context, pass Pass, ct activity.ContentType, start, end time.Time, period string) (sum Summary, err error) {
	sum = p.begin(pass, period)
	defer func() { p.finish(&sum, err) }()

	if _, err := p.ingest(ctx, &sum); err != nil {
		return sum, err
	}

	key := activity.DraftKey(ct, period, nil)
	exists, err := p.cfg.Store.HasDraft(ctx, key)
	if err != nil {
		return sum, fmt.Errorf("checking draft %s: %w", key, err)
	}
	if exists {
		sum.Skipped++
		p.logger.Info("digest already drafted", "key", key)
		return sum, nil
	}

	commits, err := p.cfg.Store.FindCommitsInRange(ctx, start, end)
	if err != nil {
		return sum, fmt.Errorf("finding commits for %s: %w", period, err)
	}
	if len(commits) == 0 {
		p.logger.Info("no commits in period", "period", period)
		return sum, nil
	}

	var units []activity.Unit
	for _, c := range commits {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		u, ok := p.correlate(ctx, c, &sum)
		if ok {
			units = append(units, u)
		}
	}
	if len(units) == 0 {
		return sum, nil
	}

	tmpl, err := p.template(ctx, ct)
	if err != nil {
		return sum, err
	}

	err = p.processUnits(ctx, &sum, workItem{
		Type:     ct,
		Units:    units,
		Template: tmpl,
		Period:   period,
	})
	return sum, err
}

// RunRetry publishes approved drafts that are still unpublished.
func (p *Pipeline) RunRetry(ctx context.Context) (sum Summary, err error) {
	sum = p.begin(PassRetry, "")
	defer func() { p.finish(&sum, err) }()

	if p.cfg.Publisher == nil {
		return sum, errors.New("retry pass requires a publisher")
	}

	rs, err := p.cfg.Publisher.Retry(ctx)
	sum.Units = rs.Queued
	sum.Published = rs.Published
	sum.Failed = rs.Failed
	sum.RateLimited = rs.RateLimited
	return sum, err
}

type workItem struct {
	Type     activity.ContentType
	Units    []activity.Unit
	Template activity.TemplateVersion
	Period   string

	// Consume marks the units' commits as used by the saved draft.
	Consume bool
}

// processUnits runs synthesize, gate, save and publish for one work item. A
// recoverable failure or panic is counted and swallowed; only store errors
// and cancellation are returned.
func (p *Pipeline) processUnits(ctx context.Context, sum *Summary, w workItem) (err error) {
	sum.Units += len(w.Units)

	shas := make([]string, len(w.Units))
	var links []activity.CorrelationLink
	for i, u := range w.Units {
		shas[i] = u.Commit.SHA
		links = append(links, u.Links...)
	}
	key := activity.DraftKey(w.Type, w.Period, shas)
	log := p.logger.With("key", key, "type", string(w.Type))

	defer func() {
		if r := recover(); r != nil {
			sum.Failed++
			log.Error("unit panicked", "panic", r, "stack", string(debug.Stack()))
			err = nil
		}
	}()

	exists, err := p.cfg.Store.HasDraft(ctx, key)
	if err != nil {
		return fmt.Errorf("checking draft %s: %w", key, err)
	}
	if exists {
		sum.Skipped++
		log.Debug("draft already exists")
		return nil
	}

	req := synth.Request{Type: w.Type, Units: w.Units, Template: w.Template, Period: w.Period}
	if p.cfg.Recall != nil {
		recall, err := p.cfg.Recall.Recall(ctx, knowledge.Query(w.Units), key)
		if err != nil {
			log.Warn("knowledge recall failed, continuing without it", "error", err)
		}
		req.Recall = recall
	}

	draft, err := p.cfg.Synthesizer.Synthesize(ctx, req)
	if err != nil {
		return p.unitFailed(ctx, sum, log, "generation failed", err)
	}

	draft, err = p.cfg.Gate.Apply(ctx, draft, w.Units)
	if err != nil {
		return p.unitFailed(ctx, sum, log, "judgement failed", err)
	}

	rec := storage.UnitRecord{Draft: draft, Links: links, ScoreTemplate: draft.TemplateVersion > 0}
	if w.Consume {
		rec.Consumed = shas
	}
	id, stored, err := p.cfg.Store.SaveUnit(ctx, rec)
	if err != nil {
		return fmt.Errorf("saving unit %s: %w", key, err)
	}
	if !stored {
		sum.Skipped++
		log.Info("draft saved concurrently by another run")
		return nil
	}
	draft.ID = id

	sum.Drafted++
	sum.Linked += len(links)
	if draft.Approved {
		sum.Approved++
	} else {
		sum.Suppressed++
	}
	p.emit(ctx, eventstream.EventTypeDraftScored, sum.Pass, draft)

	if draft.Approved && p.cfg.Publisher != nil {
		if hold := p.holdReason(sum); hold != "" {
			log.Info("approved draft queued for a later pass", "reason", hold)
			return nil
		}
		if _, err := p.cfg.Publisher.Publish(ctx, draft); err != nil {
			sum.Failed++
			if errors.Is(err, publish.ErrRateLimited) {
				sum.RateLimited = true
			}
			log.Warn("publish failed, draft stays queued", "error", err)
			return nil
		}
		sum.Published++
	}
	return nil
}

// holdReason says why a newly approved draft should wait for a later pass
// instead of publishing now, or "" when it may publish. A rate limit holds
// every later draft in the pass; draining the queue allows one post a pass.
func (p *Pipeline) holdReason(sum *Summary) string {
	switch {
	case sum.RateLimited:
		return "rate limited"
	case p.cfg.DrainQueueFirst && sum.Published > 0:
		return "already posted this pass"
	default:
		return ""
	}
}

func (p *Pipeline) unitFailed(ctx context.Context, sum *Summary, log *slog.Logger, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	sum.Failed++
	log.Warn(msg+", unit will be retried next pass", "error", err)
	return nil
}

// correlate links one commit to its prompts. A panic is recovered and the
// commit counted as failed.
func (p *Pipeline) correlate(ctx context.Context, c activity.CommitEvent, sum *Summary) (u activity.Unit, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			sum.Failed++
			p.logger.Error("correlation panicked", "sha", c.SHA, "panic", r, "stack", string(debug.Stack()))
			ok = false
		}
	}()

	u, err := p.cfg.Correlator.Correlate(ctx, c)
	if err != nil {
		sum.Failed++
		p.logger.Warn("correlation failed", "sha", c.SHA, "error", err)
		return u, false
	}
	return u, true
}

// ingest polls the sources and returns the lower bound for unconsumed
// commit queries.
func (p *Pipeline) ingest(ctx context.Context, sum *Summary) (time.Time, error) {
	since := p.now().Add(-p.cfg.Lookback)
	if p.cfg.Ingester == nil {
		return since, nil
	}

	res, err := p.cfg.Ingester.Poll(ctx)
	sum.Ingested = res.NewCommits + res.NewPrompts
	if err != nil {
		if !errors.Is(err, ingest.ErrSource) {
			return since, err
		}
		sum.Failed++
	}
	return res.Since.Add(-p.cfg.Lookback), nil
}

func (p *Pipeline) drainOne(ctx context.Context, sum *Summary) error {
	if p.cfg.Publisher == nil {
		return nil
	}
	queue, err := p.cfg.Store.UnpublishedApprovedDrafts(ctx)
	if err != nil {
		return fmt.Errorf("listing queued drafts: %w", err)
	}
	for _, d := range queue {
		if d.Type != activity.ContentPost {
			continue
		}
		if _, err := p.cfg.Publisher.Publish(ctx, d); err != nil {
			sum.Failed++
			if errors.Is(err, publish.ErrRateLimited) {
				sum.RateLimited = true
			}
			p.logger.Warn("queued post failed to publish", "key", d.Key, "error", err)
			return nil
		}
		sum.Published++
		return nil
	}
	return nil
}

func (p *Pipeline) template(ctx context.Context, ct activity.ContentType) (activity.TemplateVersion, error) {
	tv, err := storage.EnsureTemplate(ctx, p.cfg.Store, ct.TemplateKind(), synth.SeedTemplate(ct))
	if err != nil {
		return tv, fmt.Errorf("loading %s template: %w", ct, err)
	}
	return tv, nil
}

func (p *Pipeline) emit(ctx context.Context, eventType string, pass Pass, d activity.ContentDraft) {
	if p.cfg.Events == nil {
		return
	}
	eventstream.Emit(ctx, p.cfg.Events, p.logger, eventstream.NewDraftEvent(eventType, string(pass), d, p.now()))
}

func (p *Pipeline) begin(pass Pass, period string) Summary {
	return Summary{Pass: pass, Period: period, StartedAt: p.now()}
}

func (p *Pipeline) finish(sum *Summary, err error) {
	sum.FinishedAt = p.now()
	if err != nil {
		p.logger.Error("pass stopped", "summary", *sum, "error", err)
	} else {
		p.logger.Info("pass complete", "summary", *sum)
	}
	if p.cfg.RecordPass != nil {
		if rerr := p.cfg.RecordPass(string(sum.Pass), sum.Record(err)); rerr != nil {
			p.logger.Warn("could not record pass outcome", "error", rerr)
		}
	}
}
