package claude

import (
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/papercomputeco/presence/pkg/activity"
)

const maxLine = 10 * 1024 * 1024

// HistoryEntry is one line of ~/.claude/history.jsonl.
type HistoryEntry struct {
	Display   string `json:"display"`
	Timestamp int64  `json:"timestamp"`
	Project   string `json:"project"`
	SessionID string `json:"sessionId"`
}

// PromptEvent converts the entry. The UUID is sessionId_timestampMs.
func (h HistoryEntry) PromptEvent() activity.PromptEvent {
	session := h.SessionID
	if session == "" {
		session = "unknown"
	}
	return activity.PromptEvent{
		UUID:        session + "_" + itoa(h.Timestamp),
		SessionID:   session,
		ProjectPath: h.Project,
		Timestamp:   activity.Normalize(time.UnixMilli(h.Timestamp)),
		Text:        h.Display,
	}
}

// TranscriptEntry is one line of a project session transcript.
type TranscriptEntry struct {
	Type      string             `json:"type"`
	UUID      string             `json:"uuid"`
	Timestamp string             `json:"timestamp"`
	SessionID string             `json:"sessionId"`
	CWD       string             `json:"cwd"`
	Message   *TranscriptMessage `json:"message"`
}

// TranscriptMessage is the message field of a transcript entry. Content is
// a plain string for typed prompts and a block list for tool results.
type TranscriptMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// PromptText returns the typed prompt text, or "" when the entry is not a
// user prompt.
func (e *TranscriptEntry) PromptText() string {
	if e.Type != "user" || e.Message == nil || len(e.Message.Content) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(e.Message.Content, &text); err != nil {
		return ""
	}
	return text
}

// ParseHistory reads history.jsonl. A missing file yields no entries;
// malformed lines and entries without text are skipped.
func ParseHistory(path string) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := scanJSONL(path, func(line []byte) {
		var h HistoryEntry
		if json.Unmarshal(line, &h) != nil || h.Display == "" || h.Timestamp == 0 {
			return
		}
		out = append(out, h)
	})
	return out, err
}

// ParseTranscript reads one session transcript and returns the user prompt
// entries.
func ParseTranscript(path string) ([]TranscriptEntry, error) {
	var out []TranscriptEntry
	err := scanJSONL(path, func(line []byte) {
		var e TranscriptEntry
		if json.Unmarshal(line, &e) != nil || e.UUID == "" || e.PromptText() == "" {
			return
		}
		out = append(out, e)
	})
	return out, err
}

// ScanTranscriptDir finds all JSONL files under the given directory. A
// missing directory yields no files.
func ScanTranscriptDir(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".jsonl") {
			files = append(files, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return files, err
}

func scanJSONL(path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		fn(line)
	}
	return scanner.Err()
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return activity.Normalize(t), nil
}
