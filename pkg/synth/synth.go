// Package synth turns correlated units of work into content drafts by
// filling a versioned template and handing it to a Generator.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/utils"
)

// Context bounds.
const (
	MaxPromptChars     = 500
	MaxPromptsPerUnit  = 5
	MaxPromptsOverall  = 20
	MaxBatchedCommits  = 10
	MaxDigestCommits   = 50
	MaxRecallSnippets  = 3
	maxRecallSnippetSz = 280
)

// ErrGeneration wraps every failure of the generation call, including
// timeouts and empty output. It is recoverable: the unit is skipped for
// this pass and picked up again by the next one.
var ErrGeneration = errors.New("content generation failed")

// Generator produces content text from a filled-in template.
type Generator interface {
	Generate(ctx context.Context, template string, input Context) (string, error)
}

// Request describes one draft to synthesize.
type Request struct {
	Type     activity.ContentType
	Units    []activity.Unit
	Template activity.TemplateVersion

	// Period names the day ("2024-05-01") or ISO week ("2024-W18") of a
	// digest. Empty for posts.
	Period string

	// Recall holds prior published snippets related to the units.
	Recall []string
}

// CommitLine is one commit as shown to the generator.
type CommitLine struct {
	Repo    string
	Message string
}

// Context is the bounded view of a request that a template is filled from.
type Context struct {
	Type        activity.ContentType
	Period      string
	Repo        string
	Commits     []CommitLine
	CommitCount int
	Prompts     []string
	Recall      []string
}

// Render fills the placeholders in template. Unknown placeholders are left
// as they are.
func (c Context) Render(template string) string {
	first := func(xs []string, empty string) string {
		if len(xs) == 0 {
			return empty
		}
		return xs[0]
	}

	messages := make([]string, len(c.Commits))
	for i, cl := range c.Commits {
		messages[i] = cl.Message
	}

	r := strings.NewReplacer(
		"{prompt}", first(c.Prompts, "(no prompts recorded)"),
		"{prompts}", bullets(c.Prompts, "\n\n", "(no prompts recorded)"),
		"{commit_message}", first(messages, ""),
		"{commits}", c.commitBullets(),
		"{commit_count}", strconv.Itoa(c.CommitCount),
		"{repo_name}", c.Repo,
		"{period}", c.Period,
		"{related}", bullets(c.Recall, "\n", "(none available)"),
	)
	return r.Replace(template)
}

func (c Context) commitBullets() string {
	lines := make([]string, len(c.Commits))
	for i, cl := range c.Commits {
		lines[i] = fmt.Sprintf("[%s] %s", cl.Repo, cl.Message)
	}
	return bullets(lines, "\n\n", "(no commits)")
}

func bullets(items []string, sep, empty string) string {
	if len(items) == 0 {
		return empty
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = "- " + it
	}
	return strings.Join(out, sep)
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithTimeout bounds each Generate call.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) { s.logger = l }
}

// WithClock sets the draft creation clock.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) { s.now = now }
}

// Synthesizer builds drafts. It never touches the store.
type Synthesizer struct {
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a Synthesizer over gen.
func New(gen Generator, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		gen:    gen,
		logger: logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize builds the bounded context for req, calls the generator and
// returns an unscored draft.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (activity.ContentDraft, error) {
	if len(req.Units) == 0 {
		return activity.ContentDraft{}, errors.New("synthesize: no units")
	}

	input, err := BuildContext(req)
	if err != nil {
		return activity.ContentDraft{}, err
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	body, err := s.gen.Generate(callCtx, req.Template.Text, input)
	if err != nil {
		return activity.ContentDraft{}, fmt.Errorf("%w: %s: %w", ErrGeneration, req.Type, err)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return activity.ContentDraft{}, fmt.Errorf("%w: %s: empty output", ErrGeneration, req.Type)
	}

	shas, uuids := sources(req.Units)
	draft := activity.ContentDraft{
		Key:             activity.DraftKey(req.Type, req.Period, shas),
		Type:            req.Type,
		CommitSHAs:      shas,
		PromptUUIDs:     uuids,
		Body:            body,
		TemplateKind:    req.Template.Kind,
		TemplateVersion: req.Template.Version,
		CreatedAt:       activity.Normalize(s.now()),
	}

	s.logger.Debug("draft synthesized",
		"type", string(req.Type),
		"key", draft.Key,
		"template_version", req.Template.Version,
		"commits", len(shas),
		"prompts", len(uuids),
		"duration", time.Since(start),
	)

	return draft, nil
}

// BuildContext applies the context bounds for the request's content type.
func BuildContext(req Request) (Context, error) {
	c := Context{
		Type:        req.Type,
		Period:      req.Period,
		CommitCount: len(req.Units),
		Recall:      boundRecall(req.Recall),
	}

	var maxCommits int
	switch req.Type {
	case activity.ContentPost:
		maxCommits = MaxBatchedCommits
	case activity.ContentThread, activity.ContentArticle:
		maxCommits = MaxDigestCommits
	default:
		return Context{}, fmt.Errorf("synthesize: unknown content type %q", req.Type)
	}

	units := req.Units
	if len(units) > maxCommits {
		units = units[:maxCommits]
	}

	c.Repo = units[0].Commit.Repo
	for _, u := range units {
		c.Commits = append(c.Commits, CommitLine{Repo: u.Commit.Repo, Message: u.Commit.Message})

		for i, p := range u.Prompts {
			if i == MaxPromptsPerUnit || len(c.Prompts) == MaxPromptsOverall {
				break
			}
			c.Prompts = append(c.Prompts, utils.Clip(p.Text, MaxPromptChars))
		}
	}

	return c, nil
}

// sources lists the commit SHAs and distinct prompt UUIDs of units in order.
func sources(units []activity.Unit) ([]string, []string) {
	shas := make([]string, 0, len(units))
	uuids := []string{}
	seen := map[string]bool{}
	for _, u := range units {
		shas = append(shas, u.Commit.SHA)
		for _, p := range u.Prompts {
			if !seen[p.UUID] {
				seen[p.UUID] = true
				uuids = append(uuids, p.UUID)
			}
		}
	}
	return shas, uuids
}

func boundRecall(recall []string) []string {
	if len(recall) > MaxRecallSnippets {
		recall = recall[:MaxRecallSnippets]
	}
	out := make([]string, 0, len(recall))
	for _, r := range recall {
		out = append(out, utils.Clip(r, maxRecallSnippetSz))
	}
	return out
}
