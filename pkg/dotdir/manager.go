// Package dotdir manages the .presence/ and ~/.presence directories that hold
// config.toml, credentials.toml, the default SQLite event store and the
// last-pass run state.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the presence directory.
	dirName = ".presence"

	// DBFile is the default SQLite event store file inside the directory.
	DBFile = "presence.db"

	// KnowledgeFile is the default sqlite-vec recall store inside the directory.
	KnowledgeFile = "knowledge.db"

	// EnvHome names a presence directory for scheduled runs whose working
	// directory is not the project.
	EnvHome = "PRESENCE_HOME"

	// dirPerm keeps credentials.toml's directory private.
	dirPerm = 0o700
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .presence/ directory.
// Order of precedence is as follows:
//  1. Provided override, created if missing
//  2. $PRESENCE_HOME, created if missing
//  3. Local ./.presence/ dir
//  4. Home ~/.presence/ dir
//
// When nothing is configured and neither directory exists, Target returns
// an empty string; "presence init" is what creates one.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir == "" {
		overrideDir = os.Getenv(EnvHome)
	}
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, dirPerm); err != nil {
			return "", fmt.Errorf("creating presence directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if isDir(filepath.Join(cwd, dirName)) {
		return filepath.Join(cwd, dirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	if isDir(filepath.Join(home, dirName)) {
		return filepath.Join(home, dirName), nil
	}

	return "", nil
}

// Init creates a .presence/ directory under parent (the home directory when
// parent is empty) and returns its absolute path.
func (m *Manager) Init(parent string) (string, error) {
	if parent == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		parent = home
	}

	dir := filepath.Join(parent, dirName)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("creating presence directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

// DBPath returns the default SQLite path for the resolved directory, or
// an empty string when there is none.
func (m *Manager) DBPath(overrideDir string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil || dir == "" {
		return "", err
	}
	return filepath.Join(dir, DBFile), nil
}

// KnowledgePath is DBPath for the sqlite-vec recall store.
func (m *Manager) KnowledgePath(overrideDir string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil || dir == "" {
		return "", err
	}
	return filepath.Join(dir, KnowledgeFile), nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
