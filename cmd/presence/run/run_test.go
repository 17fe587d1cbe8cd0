package runcmder

import (
	"bytes"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/presence/pkg/dotdir"
	"github.com/papercomputeco/presence/pkg/pipeline"
)

func newTestCmd(args ...string) (*cobra.Command, *bytes.Buffer) {
	cmd := NewRunCmd()
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .presence/ config directory")
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return cmd, out
}

var _ = Describe("Run Command", func() {
	Describe("NewRunCmd", func() {
		It("registers the pass flags", func() {
			cmd := NewRunCmd()
			for _, name := range []string{"date", "log-file", "sqlite", "threshold", "batch-commits", "retry-delay", "github-username"} {
				Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
			}
		})

		It("offers every pass for completion", func() {
			Expect(NewRunCmd().ValidArgs).To(Equal([]string{"commit", "daily", "weekly", "retry"}))
		})

		It("requires exactly one pass", func() {
			cmd, _ := newTestCmd()
			Expect(cmd.Execute()).To(HaveOccurred())
		})
	})

	Describe("parsePass", func() {
		It("accepts pass names in any case", func() {
			p, err := parsePass("Daily")
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(Equal(pipeline.PassDaily))
		})

		It("rejects unknown passes", func() {
			_, err := parsePass("hourly")
			Expect(err).To(MatchError(ContainSubstring(`unknown pass "hourly"`)))
		})
	})

	Describe("periodDate", func() {
		now := time.Date(2024, 5, 8, 9, 0, 0, 0, time.UTC)

		It("defaults the daily pass to yesterday", func() {
			at, err := periodDate(pipeline.PassDaily, "", now)
			Expect(err).NotTo(HaveOccurred())
			_, _, period := pipeline.DayBounds(at)
			Expect(period).To(Equal("2024-05-07"))
		})

		It("defaults the weekly pass to last week", func() {
			at, err := periodDate(pipeline.PassWeekly, "", now)
			Expect(err).NotTo(HaveOccurred())
			_, _, period := pipeline.WeekBounds(at)
			Expect(period).To(Equal("2024-W18"))
		})

		It("parses an explicit date", func() {
			at, err := periodDate(pipeline.PassDaily, "2024-05-01", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(at).To(Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
		})

		It("rejects a malformed date", func() {
			_, err := periodDate(pipeline.PassWeekly, "05/01/2024", now)
			Expect(err).To(MatchError(ContainSubstring("YYYY-MM-DD")))
		})

		It("rejects a date for passes without a period", func() {
			_, err := periodDate(pipeline.PassCommit, "2024-05-01", now)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("executing a pass", func() {
		var tmpDir string

		BeforeEach(func() {
			tmpDir = GinkgoT().TempDir()
		})

		It("runs the retry pass and records it in the run state", func() {
			cmd, out := newTestCmd("retry",
				"--config-dir", tmpDir,
				"--storage-driver", "memory",
				"--provider", "ollama",
			)
			Expect(cmd.Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("retry pass"))
			Expect(out.String()).To(ContainSubstring("Published"))

			state, err := dotdir.NewManager().LoadRunState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Passes).To(HaveKey("retry"))
			Expect(state.Passes["retry"].Error).To(BeEmpty())
		})

		It("fails before building anything on a bad date", func() {
			cmd, _ := newTestCmd("commit", "--config-dir", tmpDir, "--storage-driver", "memory", "--date", "2024-05-01")
			Expect(cmd.Execute()).To(MatchError(ContainSubstring("--date")))
		})
	})

	Describe("printSummary", func() {
		It("prints every counter and the rate limit hint", func() {
			buf := &bytes.Buffer{}
			start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
			printSummary(buf, pipeline.Summary{
				Pass:        pipeline.PassRetry,
				StartedAt:   start,
				FinishedAt:  start.Add(2 * time.Second),
				Published:   2,
				Failed:      1,
				RateLimited: true,
			}, nil)

			Expect(buf.String()).To(ContainSubstring("retry pass"))
			Expect(buf.String()).To(MatchRegexp(`Published:\S*\s+\S*2`))
			Expect(buf.String()).To(ContainSubstring("presence run retry"))
		})
	})
})
