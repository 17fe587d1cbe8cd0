// Package versioncmder provides "presence version".
package versioncmder

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/presence/pkg/utils"
)

// Info is the build stamped into the binary by the release pipeline.
type Info struct {
	Version   string `json:"version"`
	Sha       string `json:"sha"`
	BuiltAt   string `json:"built_at"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Current returns the running binary's Info.
func Current() Info {
	return Info{
		Version:   utils.Version,
		Sha:       utils.Sha,
		BuiltAt:   utils.Buildtime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

type versionCommander struct {
	short  bool
	asJSON bool
}

func NewVersionCmd() *cobra.Command {
	cmder := &versionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the presence version",
		Long:  "Print the version, commit, build time and platform of this presence binary.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.print(cmd.OutOrStdout(), Current())
		},
	}

	cmd.Flags().BoolVar(&cmder.short, "short", false, "Print only the version")
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print as JSON")
	cmd.MarkFlagsMutuallyExclusive("short", "json")

	return cmd
}

func (c *versionCommander) print(out io.Writer, info Info) error {
	switch {
	case c.short:
		_, err := fmt.Fprintln(out, info.Version)
		return err
	case c.asJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	default:
		_, err := fmt.Fprintf(out, "Version:  %s\nSha:      %s\nBuilt at: %s\nGo:       %s %s\n",
			info.Version, info.Sha, info.BuiltAt, info.GoVersion, info.Platform)
		return err
	}
}
