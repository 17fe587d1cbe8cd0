package main

import (
	"context"
	"fmt"
	"path"
	"strings"

	"dagger/presence/internal/dagger"
)

// bucket is the S3-compatible destination for release artifacts.
type bucket struct {
	endpoint        *dagger.Secret
	name            *dagger.Secret
	accessKeyID     *dagger.Secret
	secretAccessKey *dagger.Secret
}

// sync copies artifacts under each prefix of the bucket.
func (b bucket) sync(ctx context.Context, artifacts *dagger.Directory, prefixes ...string) error {
	name, err := b.name.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("reading bucket name: %w", err)
	}
	endpoint, err := b.endpoint.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("reading bucket endpoint: %w", err)
	}

	aws := dag.Container().
		From("amazon/aws-cli:latest").
		WithSecretVariable("AWS_ACCESS_KEY_ID", b.accessKeyID).
		WithSecretVariable("AWS_SECRET_ACCESS_KEY", b.secretAccessKey).
		WithEnvVariable("AWS_DEFAULT_REGION", "auto").
		WithDirectory("/artifacts", artifacts).
		WithWorkdir("/artifacts")

	for _, prefix := range prefixes {
		dest := "s3://" + path.Join(name, prefix)
		if _, err := aws.WithExec([]string{"aws", "s3", "sync", ".", dest, "--endpoint-url", endpoint}).Sync(ctx); err != nil {
			return fmt.Errorf("uploading to %s: %w", prefix, err)
		}
	}
	return nil
}

// Package flattens a build into presence-<os>-<arch> binaries plus a
// SHA256SUMS file.
func (p *Presence) Package(
	ctx context.Context,

	// Version string of the build
	version string,

	// Git commit SHA of the build
	commit string,
) *dagger.Directory {
	built := p.BuildRelease(ctx, version, commit)

	out := dag.Directory()
	for _, platform := range platforms {
		name := "presence-" + platformSuffix(platform)
		out = out.WithFile(name, built.File(string(platform)+"/presence"))
	}

	sums := dag.Container().
		From("busybox:stable").
		WithDirectory("/out", out).
		WithWorkdir("/out").
		WithExec([]string{"sh", "-c", "sha256sum presence-* > SHA256SUMS"}).
		File("/out/SHA256SUMS")

	return out.WithFile("SHA256SUMS", sums)
}

// ReleaseLatest packages a tagged release and uploads it under the version
// and "latest" prefixes.
func (p *Presence) ReleaseLatest(
	ctx context.Context,

	// Version string (e.g., "v1.0.0")
	version string,

	// Git commit SHA
	commit string,

	endpoint *dagger.Secret,
	bucketName *dagger.Secret,
	accessKeyID *dagger.Secret,
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	artifacts := p.Package(ctx, version, commit)
	b := bucket{endpoint: endpoint, name: bucketName, accessKeyID: accessKeyID, secretAccessKey: secretAccessKey}
	if err := b.sync(ctx, artifacts, version, "latest"); err != nil {
		return artifacts, err
	}
	return artifacts, nil
}

// Nightly packages the given commit and uploads it under "nightly".
func (p *Presence) Nightly(
	ctx context.Context,

	// Git commit SHA
	commit string,

	endpoint *dagger.Secret,
	bucketName *dagger.Secret,
	accessKeyID *dagger.Secret,
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	artifacts := p.Package(ctx, "nightly-"+shortSHA(commit), commit)
	b := bucket{endpoint: endpoint, name: bucketName, accessKeyID: accessKeyID, secretAccessKey: secretAccessKey}
	return artifacts, b.sync(ctx, artifacts, "nightly")
}

func platformSuffix(p dagger.Platform) string {
	return strings.ReplaceAll(string(p), "/", "-")
}

func shortSHA(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
