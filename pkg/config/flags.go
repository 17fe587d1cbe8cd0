package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --sqlite
// on "presence run", "presence drafts" and "presence serve").
type Flag struct {
	// Name is the long flag name (e.g. "sqlite").
	Name string

	// Shorthand is the one-letter short flag (e.g. "s"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "storage.sqlite_path").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling the Add*Flag helpers and
// BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagStorageDriver   = "storage-driver"
	FlagSQLite          = "sqlite"
	FlagPostgres        = "postgres"
	FlagProvider        = "provider"
	FlagModel           = "model"
	FlagJudgeProvider   = "judge-provider"
	FlagJudgeModel      = "judge-model"
	FlagThreshold       = "threshold"
	FlagWindow          = "window"
	FlagBatchCommits    = "batch-commits"
	FlagDrainQueue      = "drain-queue-first"
	FlagRetryDelay      = "retry-delay"
	FlagGitHubUser      = "github-username"
	FlagClaudeDir       = "claude-dir"
	FlagBlogRepo        = "blog-repo"
	FlagAPIListen       = "api-listen"
	FlagVectorStoreProv = "vector-store-provider"
	FlagVectorStoreTgt  = "vector-store-target"
	FlagEmbeddingProv   = "embedding-provider"
	FlagEmbeddingTgt    = "embedding-target"
	FlagEmbeddingModel  = "embedding-model"
	FlagEmbeddingDims   = "embedding-dimensions"
	FlagEventsProvider  = "events-provider"
	FlagEventsBrokers   = "events-brokers"
)

// Flags is the registry shared by every presence command.
var Flags = FlagSet{
	FlagStorageDriver:   {Name: "storage-driver", ViperKey: "storage.driver", Description: "Event store driver (sqlite, postgres, memory)"},
	FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database"},
	FlagPostgres:        {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagProvider:        {Name: "provider", ViperKey: "llm.provider", Description: "Generation LLM provider (openai, anthropic, ollama)"},
	FlagModel:           {Name: "model", Shorthand: "m", ViperKey: "llm.model", Description: "Generation model name"},
	FlagJudgeProvider:   {Name: "judge-provider", ViperKey: "judge.provider", Description: "Judge LLM provider (defaults to --provider)"},
	FlagJudgeModel:      {Name: "judge-model", ViperKey: "judge.model", Description: "Judge model name (defaults to --model)"},
	FlagThreshold:       {Name: "threshold", ViperKey: "gate.threshold", Description: "Minimum judge score for publication"},
	FlagWindow:          {Name: "window", ViperKey: "correlation.window", Description: "Maximum distance between a commit and a correlated prompt"},
	FlagBatchCommits:    {Name: "batch-commits", ViperKey: "pipeline.batch_commits", Description: "Produce one post for all new commits instead of one per commit"},
	FlagDrainQueue:      {Name: "drain-queue-first", ViperKey: "pipeline.drain_queue_first", Description: "Publish the oldest queued post before generating new ones, one post per pass"},
	FlagRetryDelay:      {Name: "retry-delay", ViperKey: "pipeline.retry_delay", Description: "Pause between publish retries"},
	FlagGitHubUser:      {Name: "github-username", ViperKey: "github.username", Description: "GitHub account whose commits are ingested"},
	FlagClaudeDir:       {Name: "claude-dir", ViperKey: "claude.dir", Description: "Directory holding Claude Code session transcripts"},
	FlagBlogRepo:        {Name: "blog-repo", ViperKey: "blog.repo_path", Description: "Local checkout of the static blog"},
	FlagAPIListen:       {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for API server to listen on"},
	FlagVectorStoreProv: {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector store provider (sqlitevec, qdrant, chroma)"},
	FlagVectorStoreTgt:  {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Vector store target (file path or host:port)"},
	FlagEmbeddingProv:   {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama)"},
	FlagEmbeddingTgt:    {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	FlagEmbeddingModel:  {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	FlagEmbeddingDims:   {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding dimensionality"},
	FlagEventsProvider:  {Name: "events-provider", ViperKey: "events.provider", Description: "Decision event sink (kafka or empty)"},
	FlagEventsBrokers:   {Name: "events-brokers", ViperKey: "events.brokers", Description: "Comma separated Kafka brokers"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddFloatFlag registers a float64 flag on cmd from the given FlagSet.
func AddFloatFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *float64) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetFloat64(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().Float64VarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().Float64Var(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddDurationFlag registers a duration flag on cmd from the given FlagSet.
func AddDurationFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *time.Duration) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetDuration(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().DurationVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().DurationVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaults returns a viper instance holding only NewDefaultConfig values.
func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
