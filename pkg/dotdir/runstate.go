package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	runStateFile = "runstate.json"
)

// PassRecord is the outcome of the most recent run of one pass kind.
type PassRecord struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Units      int       `json:"units"`
	Generated  int       `json:"generated"`
	Approved   int       `json:"approved"`
	Suppressed int       `json:"suppressed"`
	Published  int       `json:"published"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// RunState maps a pass kind ("commit", "daily", "weekly", "retry") to
// its last recorded outcome.
type RunState struct {
	Passes map[string]PassRecord `json:"passes"`
}

// LoadRunState loads the run state from a target .presence/runstate.json.
// Returns an empty state if none has been recorded yet.
func (m *Manager) LoadRunState(overrideDir string) (*RunState, error) {
	state := &RunState{Passes: map[string]PassRecord{}}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return state, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, runStateFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}
		return nil, fmt.Errorf("reading run state: %w", err)
	}

	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing run state: %w", err)
	}
	if state.Passes == nil {
		state.Passes = map[string]PassRecord{}
	}

	return state, nil
}

// RecordPass stores rec as the latest outcome for pass and persists the
// state. It is a no-op when no .presence/ directory can be resolved.
func (m *Manager) RecordPass(pass string, rec PassRecord, overrideDir string) error {
	state, err := m.LoadRunState(overrideDir)
	if err != nil {
		return err
	}
	state.Passes[pass] = rec

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}
	if dir == "" {
		return nil
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, runStateFile), data, 0o600); err != nil {
		return fmt.Errorf("writing run state: %w", err)
	}

	return nil
}
