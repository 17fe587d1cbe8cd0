package main

import (
	"context"
	"errors"
	"fmt"

	"dagger/presence/internal/dagger"
)

const golangciLintVersion = "v2.8.0"

// CheckGoModTidy fails when go.mod or go.sum differ from what "go mod tidy"
// would write.
//
// +check
func (p *Presence) CheckGoModTidy(ctx context.Context) (string, error) {
	_, err := p.goContainer("").
		WithExec([]string{"go", "mod", "tidy", "-diff"}).
		Sync(ctx)

	var e *dagger.ExecError
	if errors.As(err, &e) {
		return "", fmt.Errorf("go.mod or go.sum are not tidy, run 'go mod tidy':\n\n%s", e.Stdout)
	}
	if err != nil {
		return "", err
	}
	return "go.mod and go.sum are tidy", nil
}

// CheckFormat fails when any Go file is not gofmt'd.
//
// +check
func (p *Presence) CheckFormat(ctx context.Context) (string, error) {
	return p.goContainer("").
		WithExec([]string{"sh", "-c", `out=$(gofmt -l .); test -z "$out" || { echo "$out"; exit 1; }`}).
		Stdout(ctx)
}

// lintContainer is goContainer with golangci-lint installed, so linting
// sees the same cgo toolchain as the build.
func (p *Presence) lintContainer() *dagger.Container {
	return p.goContainer("").
		WithExec([]string{"go", "install", "github.com/golangci/golangci-lint/v2/cmd/golangci-lint@" + golangciLintVersion})
}

// CheckLint runs golangci-lint with .golangci.yml.
//
// +check
func (p *Presence) CheckLint(ctx context.Context) (string, error) {
	return p.lintContainer().
		WithExec([]string{"golangci-lint", "run", "./..."}).
		Stdout(ctx)
}

// FixLint applies golangci-lint's automatic fixes and returns the source.
func (p *Presence) FixLint() *dagger.Directory {
	return p.lintContainer().
		WithExec([]string{"sh", "-c", "golangci-lint run --fix ./... || true"}).
		Directory("/src")
}
