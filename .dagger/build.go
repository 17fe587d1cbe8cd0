package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/presence/internal/dagger"
)

// platforms presence is released for. Each builds natively on its own
// platform since the SQLite drivers need cgo.
var platforms = []dagger.Platform{"linux/amd64", "linux/arm64"}

const versionPkg = "github.com/papercomputeco/presence/pkg/utils"

// Build compiles cli/presence for every platform into <os>/<arch>/presence.
func (p *Presence) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	out := dag.Directory()
	for _, platform := range platforms {
		dir := string(platform)
		bin := p.goContainer(platform).
			WithExec([]string{"go", "build", "-trimpath", "-ldflags", ldflags, "-o", dir + "/presence", "./cli/presence"}).
			File(dir + "/presence")
		out = out.WithFile(dir+"/presence", bin)
	}
	return out
}

// BuildRelease is Build with the version, commit and build time stamped
// into pkg/utils so "presence version" and the User-Agent report them.
func (p *Presence) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	stamp := map[string]string{
		"Version":   version,
		"Sha":       commit,
		"Buildtime": time.Now().UTC().Format(time.RFC3339),
	}
	flags := []string{"-s", "-w"}
	for _, name := range []string{"Version", "Sha", "Buildtime"} {
		flags = append(flags, fmt.Sprintf("-X '%s.%s=%s'", versionPkg, name, stamp[name]))
	}
	return p.Build(ctx, strings.Join(flags, " "))
}
