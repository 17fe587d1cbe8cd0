// Package gate scores drafts with a judge and decides publish or suppress
// against a threshold.
package gate

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

// DefaultThreshold is the minimum overall score for publication.
const DefaultThreshold = 0.7

// Rubric dimensions, each judged out of 10.
const (
	DimAuthenticity  = "authenticity"
	DimInsightDepth  = "insight_depth"
	DimClarity       = "clarity"
	DimVoiceMatch    = "voice_match"
	DimAccessibility = "accessibility"
)

// Dimensions lists every rubric dimension. All are required.
var Dimensions = []string{DimAuthenticity, DimInsightDepth, DimClarity, DimVoiceMatch, DimAccessibility}

// ErrJudgement wraps failed or malformed judge calls. It is recoverable:
// nothing is persisted for the unit and it is retried next pass.
var ErrJudgement = errors.New("judgement failed")

// Input is what the judge sees.
type Input struct {
	Type    activity.ContentType
	Content string
	Prompts []string
	Commits []string
}

// Judgement is a raw judge reply: per-dimension scores out of 10 and the
// judge's rationale.
type Judgement struct {
	Dimensions map[string]float64
	Rationale  string
}

// Judge scores content against a rubric.
type Judge interface {
	Judge(ctx context.Context, rubric string, in Input) (Judgement, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, rubric string, in Input) (Judgement, error)

func (f JudgeFunc) Judge(ctx context.Context, rubric string, in Input) (Judgement, error) {
	return f(ctx, rubric, in)
}

// Option configures a Gate.
type Option func(*Gate)

// WithThreshold sets the approval threshold.
func WithThreshold(t float64) Option {
	return func(g *Gate) { g.threshold = t }
}

// WithTimeout bounds each judge call.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// Gate evaluates drafts and records template statistics.
type Gate struct {
	judge     Judge
	templates storage.TemplateStore
	threshold float64
	timeout   time.Duration
	logger    *slog.Logger
}

// New returns a Gate. The rubric is read from templates, seeded from
// DefaultRubric on first use.
func New(judge Judge, templates storage.TemplateStore, opts ...Option) *Gate {
	g := &Gate{
		judge:     judge,
		templates: templates,
		threshold: DefaultThreshold,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Threshold returns the approval threshold.
func (g *Gate) Threshold() float64 {
	return g.threshold
}

// Evaluate scores d. Every successful evaluation carries a score and a
// decision; a judge failure or a reply missing a dimension is ErrJudgement.
func (g *Gate) Evaluate(ctx context.Context, d activity.ContentDraft, units []activity.Unit) (storage.Evaluation, error) {
	rubric, err := storage.EnsureTemplate(ctx, g.templates, activity.KindRubric, DefaultRubric)
	if err != nil {
		return storage.Evaluation{}, fmt.Errorf("loading rubric: %w", err)
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	j, err := g.judge.Judge(callCtx, rubric.Text, inputFor(d, units))
	if err != nil {
		return storage.Evaluation{}, fmt.Errorf("%w: draft %s: %w", ErrJudgement, d.Key, err)
	}

	ev, err := Score(j, g.threshold)
	if err != nil {
		return storage.Evaluation{}, fmt.Errorf("%w: draft %s: %w", ErrJudgement, d.Key, err)
	}

	return ev, nil
}

// Apply evaluates d and returns it with the gate outcome set. The score is
// not recorded against the generation template; the caller folds it in
// when it persists the draft.
func (g *Gate) Apply(ctx context.Context, d activity.ContentDraft, units []activity.Unit) (activity.ContentDraft, error) {
	if d.Scored {
		return d, storage.ErrAlreadyScored
	}

	ev, err := g.Evaluate(ctx, d, units)
	if err != nil {
		return d, err
	}

	d.Scored = true
	d.Score = ev.Score
	d.Dimensions = ev.Dimensions
	d.Rationale = ev.Rationale
	d.Approved = ev.Approved

	g.logger.Info("draft scored",
		"key", d.Key,
		"type", string(d.Type),
		"score", ev.Score,
		"threshold", g.threshold,
		"approved", ev.Approved,
	)

	return d, nil
}

// Score normalizes a raw judgement and applies the threshold. Each
// dimension is clamped to [0,10]; the overall score is their unweighted
// mean scaled to [0,1]. Approval is score >= threshold.
func Score(j Judgement, threshold float64) (storage.Evaluation, error) {
	var missing []string
	dims := make(map[string]float64, len(Dimensions))
	var sum float64
	for _, name := range Dimensions {
		raw, ok := j.Dimensions[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		raw = min(max(raw, 0), 10)
		sum += raw
		dims[name] = raw / 10
	}
	if len(missing) > 0 {
		return storage.Evaluation{}, fmt.Errorf("judgement missing dimensions %v", missing)
	}

	score := sum / float64(10*len(Dimensions))
	return storage.Evaluation{
		Score:      score,
		Dimensions: dims,
		Rationale:  j.Rationale,
		Approved:   score >= threshold,
	}, nil
}

func inputFor(d activity.ContentDraft, units []activity.Unit) Input {
	in := Input{Type: d.Type, Content: d.Body}
	seen := map[string]bool{}
	for _, u := range units {
		in.Commits = append(in.Commits, fmt.Sprintf("[%s] %s", u.Commit.Repo, u.Commit.Subject()))
		for _, p := range u.Prompts {
			if !seen[p.UUID] {
				seen[p.UUID] = true
				in.Prompts = append(in.Prompts, p.Text)
			}
		}
	}
	return in
}
