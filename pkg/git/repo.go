package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNothingToCommit is returned by Commit when the index has no changes.
var ErrNothingToCommit = errors.New("nothing to commit")

// Repo runs git in a working tree.
type Repo struct {
	Dir string
}

// Open returns a Repo for dir after checking it is a git working tree.
func Open(ctx context.Context, dir string) (*Repo, error) {
	r := &Repo{Dir: dir}
	out, err := r.run(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return nil, err
	}
	if out != "true" {
		return nil, fmt.Errorf("%s is not a git working tree", dir)
	}
	return r, nil
}

// Add stages paths relative to the repository.
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	_, err := r.run(ctx, append([]string{"add", "--"}, paths...)...)
	return err
}

// Commit records the staged changes.
func (r *Repo) Commit(ctx context.Context, message string) error {
	if _, err := r.run(ctx, "diff", "--cached", "--quiet"); err == nil {
		return ErrNothingToCommit
	}
	_, err := r.run(ctx, "commit", "-m", message)
	return err
}

// Push pushes the current branch to its upstream.
func (r *Repo) Push(ctx context.Context) error {
	_, err := r.run(ctx, "push")
	return err
}

// Head returns the current commit SHA.
func (r *Repo) Head(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "HEAD")
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
