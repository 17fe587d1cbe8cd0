// Presence CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
// It is the main harness for handling nearly all dev operations.
package main

import (
	"context"

	"dagger/presence/internal/dagger"
)

// Presence is the main module for the Presence CI/CD pipeline
type Presence struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Presence CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", ".presence", "build", "tmp"]
	source *dagger.Directory,
) *Presence {
	return &Presence{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container for the given
// platform with gcc, libsqlite3-dev, CGO enabled, and the project source
// mounted. An empty platform uses the engine's own.
//
// It is the shared foundation for tests, builds, and linting. The SQLite
// store and the sqlite-vec extension are cgo, so every build goes through it.
func (p *Presence) goContainer(platform dagger.Platform) *dagger.Container {
	return dag.Container(dagger.ContainerOpts{Platform: platform}).
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev", "git"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build-"+string(platform))).
		WithWorkdir("/src").
		WithDirectory("/src", p.Source)
}

// Test runs the presence unit tests via "go test". The store specs run
// against SQLite; PostgreSQL specs are skipped unless a DSN is provided.
func (p *Presence) Test(
	ctx context.Context,

	// PostgreSQL connection string for the postgres driver specs
	// +optional
	postgresDSN *dagger.Secret,
) (string, error) {
	ctr := p.goContainer("")
	if postgresDSN != nil {
		ctr = ctr.WithSecretVariable("PRESENCE_TEST_POSTGRES_DSN", postgresDSN)
	}
	return ctr.
		WithExec([]string{"go", "test", "-v", "./..."}).
		Stdout(ctx)
}
