package pipeline

import (
	"log/slog"
	"time"

	"github.com/papercomputeco/presence/pkg/dotdir"
)

// Pass names one pipeline entry point.
type Pass string

const (
	PassCommit Pass = "commit"
	PassDaily  Pass = "daily"
	PassWeekly Pass = "weekly"
	PassRetry  Pass = "retry"
)

// Passes lists every pass in the order the CLI documents them.
var Passes = []Pass{PassCommit, PassDaily, PassWeekly, PassRetry}

// Summary counts the outcome of one pass. It is produced even when the pass
// stops early.
type Summary struct {
	Pass       Pass
	Period     string
	StartedAt  time.Time
	FinishedAt time.Time

	// Ingested is the number of newly recorded commits and prompts.
	Ingested int

	// Units is the number of units considered.
	Units int

	// Linked is the number of correlation links written.
	Linked int

	Drafted    int
	Approved   int
	Suppressed int
	Published  int

	// Failed counts units, publishes and sources that failed recoverably.
	Failed int

	// Skipped counts units whose draft already existed.
	Skipped int

	// RateLimited is set when publishing stopped on a rate limit.
	RateLimited bool
}

// LogValue renders the summary as structured log attributes.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("pass", string(s.Pass)),
		slog.String("period", s.Period),
		slog.Int("ingested", s.Ingested),
		slog.Int("units", s.Units),
		slog.Int("linked", s.Linked),
		slog.Int("drafted", s.Drafted),
		slog.Int("approved", s.Approved),
		slog.Int("suppressed", s.Suppressed),
		slog.Int("published", s.Published),
		slog.Int("failed", s.Failed),
		slog.Int("skipped", s.Skipped),
		slog.Bool("rate_limited", s.RateLimited),
		slog.Duration("duration", s.FinishedAt.Sub(s.StartedAt)),
	)
}

// Record converts the summary for the run state file.
func (s Summary) Record(err error) dotdir.PassRecord {
	rec := dotdir.PassRecord{
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Units:      s.Units,
		Generated:  s.Drafted,
		Approved:   s.Approved,
		Suppressed: s.Suppressed,
		Published:  s.Published,
		Failed:     s.Failed,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}
