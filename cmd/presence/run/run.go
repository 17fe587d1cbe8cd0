// Package runcmder provides the run command, the entry point schedulers
// invoke for each pipeline pass.
package runcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/presence/cmd/presence/bootstrap"
	"github.com/papercomputeco/presence/pkg/cliui"
	"github.com/papercomputeco/presence/pkg/config"
	"github.com/papercomputeco/presence/pkg/pipeline"
)

type runCommander struct {
	configDir string
	debug     bool
	date      string
	logFile   string

	storageDriver string
	sqlitePath    string
	postgresDSN   string
	provider      string
	model         string
	judgeProvider string
	judgeModel    string
	threshold     float64
	window        time.Duration
	batchCommits  bool
	drainQueue    bool
	retryDelay    time.Duration
	githubUser    string
	claudeDir     string
	blogRepo      string
	eventsProv    string
	eventsBrokers string

	out    io.Writer
	logger *slog.Logger
}

var runFlags = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagProvider,
	config.FlagModel,
	config.FlagJudgeProvider,
	config.FlagJudgeModel,
	config.FlagThreshold,
	config.FlagWindow,
	config.FlagBatchCommits,
	config.FlagDrainQueue,
	config.FlagRetryDelay,
	config.FlagGitHubUser,
	config.FlagClaudeDir,
	config.FlagBlogRepo,
	config.FlagEventsProvider,
	config.FlagEventsBrokers,
}

const runLongDesc string = `Run one pipeline pass.

Passes are idempotent: running one twice over the same input creates no
duplicate drafts and never publishes anything twice. Schedule them with
cron or launchd.

Passes:
  commit    Ingest new commits and prompts, then draft, score and publish
            one post per new commit (or one for all with --batch-commits)
  daily     Draft, score and publish a thread covering one day
            (yesterday unless --date is given)
  weekly    Draft, score and queue or publish an article covering one
            ISO week (last week unless --date is given)
  retry     Publish approved drafts whose earlier publish failed

The command exits non-zero when the pass fails or any unit, source or
publish in it failed.

Examples:
  presence run commit
  presence run daily --date 2024-05-01
  presence run weekly --log-file ~/.presence/presence.log
  presence run retry --retry-delay 30s`

const runShortDesc string = "Run a pipeline pass"

func NewRunCmd() *cobra.Command {
	cmder := &runCommander{}

	cmd := &cobra.Command{
		Use:       "run <commit|daily|weekly|retry>",
		Short:     runShortDesc,
		Long:      runLongDesc,
		Args:      cobra.ExactArgs(1),
		ValidArgs: passNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := parsePass(args[0])
			if err != nil {
				return err
			}

			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.out = cmd.OutOrStdout()

			cfg, err := bootstrap.LoadConfig(cmd, runFlags)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, cfg, pass)
		},
	}

	cmd.Flags().StringVar(&cmder.date, "date", "", "Day (YYYY-MM-DD) inside the period for daily and weekly passes")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagProvider, &cmder.provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, config.Flags, config.FlagJudgeProvider, &cmder.judgeProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagJudgeModel, &cmder.judgeModel)
	config.AddFloatFlag(cmd, config.Flags, config.FlagThreshold, &cmder.threshold)
	config.AddDurationFlag(cmd, config.Flags, config.FlagWindow, &cmder.window)
	config.AddBoolFlag(cmd, config.Flags, config.FlagBatchCommits, &cmder.batchCommits)
	config.AddBoolFlag(cmd, config.Flags, config.FlagDrainQueue, &cmder.drainQueue)
	config.AddDurationFlag(cmd, config.Flags, config.FlagRetryDelay, &cmder.retryDelay)
	config.AddStringFlag(cmd, config.Flags, config.FlagGitHubUser, &cmder.githubUser)
	config.AddStringFlag(cmd, config.Flags, config.FlagClaudeDir, &cmder.claudeDir)
	config.AddStringFlag(cmd, config.Flags, config.FlagBlogRepo, &cmder.blogRepo)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsProvider, &cmder.eventsProv)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsBrokers, &cmder.eventsBrokers)

	return cmd
}

func (c *runCommander) run(ctx context.Context, cfg *config.Config, pass pipeline.Pass) error {
	at, err := periodDate(pass, c.date, time.Now())
	if err != nil {
		return err
	}

	log, closer, err := bootstrap.NewLogger(c.debug, c.logFile)
	if err != nil {
		return err
	}
	defer closer.Close()
	c.logger = log

	var stack *bootstrap.Stack
	err = cliui.Step(c.out, "Opening store and channels", func() error {
		var err error
		stack, err = bootstrap.Build(ctx, bootstrap.Options{
			Config:    cfg,
			ConfigDir: c.configDir,
			Logger:    log,
		})
		return err
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			c.logger.Error("closing components", "error", err)
		}
	}()

	sum, err := stack.Pipeline.Run(ctx, pass, at)
	printSummary(c.out, sum, err)
	if err != nil {
		return fmt.Errorf("%s pass: %w", pass, err)
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%s pass: %d failed", pass, sum.Failed)
	}
	return nil
}

// periodDate picks the instant whose day or week a digest pass covers.
// Digest passes default to the last complete period.
func periodDate(pass pipeline.Pass, date string, now time.Time) (time.Time, error) {
	if date != "" {
		if pass != pipeline.PassDaily && pass != pipeline.PassWeekly {
			return time.Time{}, errors.New("--date only applies to daily and weekly passes")
		}
		t, err := time.ParseInLocation(time.DateOnly, date, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", date)
		}
		return t, nil
	}

	switch pass {
	case pipeline.PassDaily:
		return now.UTC().AddDate(0, 0, -1), nil
	case pipeline.PassWeekly:
		return now.UTC().AddDate(0, 0, -7), nil
	default:
		return now.UTC(), nil
	}
}

func parsePass(name string) (pipeline.Pass, error) {
	for _, p := range pipeline.Passes {
		if string(p) == strings.ToLower(name) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown pass %q\n\nValid passes: %s", name, strings.Join(passNames(), ", "))
}

func passNames() []string {
	names := make([]string, 0, len(pipeline.Passes))
	for _, p := range pipeline.Passes {
		names = append(names, string(p))
	}
	return names
}

func printSummary(w io.Writer, sum pipeline.Summary, err error) {
	title := string(sum.Pass) + " pass"
	if sum.Period != "" {
		title += " " + sum.Period
	}

	mark := cliui.SuccessMark
	if err != nil || sum.Failed > 0 {
		mark = cliui.FailMark
	}
	fmt.Fprintf(w, "\n  %s %s %s\n\n", mark, cliui.HeaderStyle.Render(title),
		cliui.DimStyle.Render("("+cliui.FormatDuration(sum.FinishedAt.Sub(sum.StartedAt))+")"))

	cliui.KeyValues(w, []cliui.KV{
		{Key: "Ingested", Value: strconv.Itoa(sum.Ingested)},
		{Key: "Linked", Value: strconv.Itoa(sum.Linked)},
		{Key: "Drafted", Value: strconv.Itoa(sum.Drafted)},
		{Key: "Approved", Value: strconv.Itoa(sum.Approved)},
		{Key: "Suppressed", Value: strconv.Itoa(sum.Suppressed)},
		{Key: "Published", Value: strconv.Itoa(sum.Published)},
		{Key: "Failed", Value: strconv.Itoa(sum.Failed)},
		{Key: "Skipped", Value: strconv.Itoa(sum.Skipped)},
	})

	if sum.RateLimited {
		fmt.Fprintf(w, "\n  %s Publishing stopped on a rate limit; run %s later.\n",
			cliui.WarnStyle.Render("!"), cliui.NameStyle.Render("presence run retry"))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(w, "\n  %s %s\n", cliui.FailMark, err)
	}
	fmt.Fprintln(w)
}
