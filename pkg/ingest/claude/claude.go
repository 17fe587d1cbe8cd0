// Package claude reads developer prompts from Claude Code's local logs: the
// global history.jsonl and the per-project session transcripts.
package claude

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/ingest"
	"github.com/papercomputeco/presence/pkg/logger"
)

// DefaultDir is the Claude Code data directory relative to the home dir.
const DefaultDir = ".claude"

// Reader lists prompt events from a Claude Code data directory.
type Reader struct {
	dir         string
	transcripts bool
	logger      *slog.Logger
}

var _ ingest.PromptSource = (*Reader)(nil)

// NewReader returns a Reader for dir, defaulting to ~/.claude. With
// transcripts set, prompts missing from the history are also read from the
// project session files.
func NewReader(dir string, transcripts bool, log *slog.Logger) (*Reader, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, DefaultDir)
	} else if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, dir[2:])
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Reader{dir: dir, transcripts: transcripts, logger: log}, nil
}

// ListPromptEvents returns prompts at or after since, oldest first. A
// transcript prompt that repeats a history prompt in the same session is
// dropped so each instruction is recorded once.
func (r *Reader) ListPromptEvents(ctx context.Context, since time.Time) ([]activity.PromptEvent, error) {
	history, err := ParseHistory(filepath.Join(r.dir, "history.jsonl"))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []activity.PromptEvent
	for _, h := range history {
		p := h.PromptEvent()
		seen[dedupeKey(p)] = true
		if p.Timestamp.Before(since) {
			continue
		}
		out = append(out, p)
	}

	if r.transcripts {
		files, err := ScanTranscriptDir(filepath.Join(r.dir, "projects"))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			entries, err := ParseTranscript(f)
			if err != nil {
				r.logger.Warn("skipping transcript", "path", f, "error", err)
				continue
			}
			for _, e := range entries {
				ts, err := parseTimestamp(e.Timestamp)
				if err != nil || ts.Before(since) {
					continue
				}
				p := activity.PromptEvent{
					UUID:        e.UUID,
					SessionID:   e.SessionID,
					ProjectPath: e.CWD,
					Timestamp:   ts,
					Text:        e.PromptText(),
				}
				key := dedupeKey(p)
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, p)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	r.logger.Debug("read claude prompts", "dir", r.dir, "prompts", len(out), "since", since)
	return out, nil
}

func dedupeKey(p activity.PromptEvent) string {
	return p.SessionID + "\x00" + strings.TrimSpace(p.Text)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
