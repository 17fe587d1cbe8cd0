package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const detectTimeout = 5 * time.Second

// RepoName names the repository containing dir: the base name of its git
// top level, or of dir itself when dir is not in a work tree. An empty dir
// means the working directory.
func RepoName(dir string) string {
	if top := topLevel(dir); top != "" {
		return filepath.Base(top)
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ""
		}
		dir = wd
	}
	return filepath.Base(filepath.Clean(dir))
}

func topLevel(dir string) string {
	ctx, cancel := context.WithTimeout(context.Background(), detectTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// RepoNames memoizes RepoName. Assistant sessions repeat a handful of
// project paths across thousands of prompts.
type RepoNames struct {
	mu    sync.Mutex
	names map[string]string
}

// Name returns RepoName(path), running git once per distinct path.
func (r *RepoNames) Name(path string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name, ok := r.names[path]; ok {
		return name
	}
	if r.names == nil {
		r.names = make(map[string]string)
	}
	name := RepoName(path)
	r.names[path] = name
	return name
}
