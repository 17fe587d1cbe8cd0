// Package correlate matches commits to the prompts that plausibly caused
// them, scoring each candidate by its time distance from the commit.
package correlate

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/papercomputeco/presence/pkg/activity"
)

const (
	// DefaultWindow is the half-width of the search interval around a commit.
	DefaultWindow = 30 * time.Minute

	// DefaultFloor is the confidence of a prompt exactly at the window edge.
	DefaultFloor = 0.1
)

// PromptFinder is the slice of the event store the correlator reads.
type PromptFinder interface {
	FindPromptsInWindow(ctx context.Context, center time.Time, radius time.Duration) ([]activity.PromptEvent, error)
}

// Options configures a Correlator.
type Options struct {
	// Window is the symmetric search radius. Zero means DefaultWindow.
	Window time.Duration

	// Floor is the confidence at the window boundary, in [0,1).
	Floor float64

	// MinConfidence drops candidates scoring below it. Zero means Floor.
	MinConfidence float64

	// MatchProject drops prompts whose project directory name differs from
	// the commit's repository name.
	MatchProject bool

	// ProjectName maps a prompt's project path to a repository name for
	// MatchProject. Nil means the path's base name.
	ProjectName func(path string) string
}

// Correlator links commits to prompts.
type Correlator struct {
	prompts PromptFinder
	opts    Options
}

// New returns a Correlator reading prompts from finder.
func New(finder PromptFinder, opts Options) (*Correlator, error) {
	if opts.Window == 0 {
		opts.Window = DefaultWindow
	}
	if opts.Window < 0 {
		return nil, fmt.Errorf("correlation window must be positive, got %s", opts.Window)
	}
	if opts.Floor < 0 || opts.Floor >= 1 {
		return nil, fmt.Errorf("confidence floor must be in [0,1), got %v", opts.Floor)
	}
	if opts.MinConfidence == 0 {
		opts.MinConfidence = opts.Floor
	}
	if opts.ProjectName == nil {
		opts.ProjectName = filepath.Base
	}

	return &Correlator{prompts: finder, opts: opts}, nil
}

// Window returns the configured search radius.
func (c *Correlator) Window() time.Duration {
	return c.opts.Window
}

// Confidence scores a prompt at distance d from its commit. It is 1.0 at
// d=0, Floor at |d|=Window, linear in between and 0 outside the window.
func (c *Correlator) Confidence(d time.Duration) float64 {
	return Confidence(d, c.opts.Window, c.opts.Floor)
}

// Confidence is the linear decay used by Correlator.
func Confidence(d, window time.Duration, floor float64) float64 {
	if d < 0 {
		d = -d
	}
	if d > window {
		return 0
	}
	frac := float64(d) / float64(window)
	return floor + (1-floor)*(1-frac)
}

// Correlate finds the prompts around commit and returns them with their
// links, highest confidence first. A commit with no prompts yields a unit
// with none; that is not an error.
func (c *Correlator) Correlate(ctx context.Context, commit activity.CommitEvent) (activity.Unit, error) {
	unit := activity.Unit{Commit: commit}

	candidates, err := c.prompts.FindPromptsInWindow(ctx, commit.Timestamp, c.opts.Window)
	if err != nil {
		return unit, fmt.Errorf("finding prompts for %s: %w", commit.SHA, err)
	}

	unit.Prompts, unit.Links = c.Match(commit, candidates)
	return unit, nil
}

// Match scores candidates against commit without touching the store.
func (c *Correlator) Match(commit activity.CommitEvent, candidates []activity.PromptEvent) ([]activity.PromptEvent, []activity.CorrelationLink) {
	type scored struct {
		prompt     activity.PromptEvent
		distance   time.Duration
		confidence float64
	}

	var matches []scored
	for _, p := range candidates {
		d := p.Timestamp.Sub(commit.Timestamp)
		if d < 0 {
			d = -d
		}
		if d > c.opts.Window {
			continue
		}
		if c.opts.MatchProject && !c.sameProject(commit.Repo, p.ProjectPath) {
			continue
		}

		conf := c.Confidence(d)
		if conf < c.opts.MinConfidence {
			continue
		}
		matches = append(matches, scored{prompt: p, distance: d, confidence: conf})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].confidence != matches[j].confidence {
			return matches[i].confidence > matches[j].confidence
		}
		return matches[i].prompt.Timestamp.Before(matches[j].prompt.Timestamp)
	})

	prompts := make([]activity.PromptEvent, 0, len(matches))
	links := make([]activity.CorrelationLink, 0, len(matches))
	for _, m := range matches {
		prompts = append(prompts, m.prompt)
		links = append(links, activity.CorrelationLink{
			CommitSHA:  commit.SHA,
			PromptUUID: m.prompt.UUID,
			Confidence: m.confidence,
			Distance:   m.distance,
		})
	}
	return prompts, links
}

func (c *Correlator) sameProject(repo, projectPath string) bool {
	if repo == "" || projectPath == "" {
		return true
	}
	name := repo
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.EqualFold(name, c.opts.ProjectName(projectPath))
}
