package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent presence configuration stored as
// config.toml in the .presence/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	LLM         LLMConfig         `toml:"llm"`
	Judge       LLMConfig         `toml:"judge"`
	Correlation CorrelationConfig `toml:"correlation"`
	Gate        GateConfig        `toml:"gate"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Timeouts    TimeoutsConfig    `toml:"timeouts"`
	GitHub      GitHubConfig      `toml:"github"`
	Claude      ClaudeConfig      `toml:"claude"`
	X           XConfig           `toml:"x"`
	Blog        BlogConfig        `toml:"blog"`
	API         APIConfig         `toml:"api"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Knowledge   KnowledgeConfig   `toml:"knowledge"`
	Events      EventsConfig      `toml:"events"`
}

// StorageConfig selects the event store driver.
type StorageConfig struct {
	Driver      string `toml:"driver,omitempty"` // "sqlite", "postgres" or "memory"
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// LLMConfig selects a language model. The judge section falls back to the
// llm section for any field it leaves empty.
type LLMConfig struct {
	Provider string `toml:"provider,omitempty"`
	Model    string `toml:"model,omitempty"`
	BaseURL  string `toml:"base_url,omitempty"`
}

// CorrelationConfig tunes commit to prompt matching.
type CorrelationConfig struct {
	Window        Duration `toml:"window,omitempty"`
	Floor         float64  `toml:"floor,omitempty"`
	MinConfidence float64  `toml:"min_confidence,omitempty"`
	MatchProject  bool     `toml:"match_project,omitempty"`
}

// GateConfig holds the publish threshold.
type GateConfig struct {
	Threshold float64 `toml:"threshold,omitempty"`
}

// PipelineConfig holds pass behaviour switches.
type PipelineConfig struct {
	BatchCommits    bool     `toml:"batch_commits,omitempty"`
	DrainQueueFirst bool     `toml:"drain_queue_first,omitempty"`
	FirstPollWindow Duration `toml:"first_poll_window,omitempty"`
	RetryDelay      Duration `toml:"retry_delay,omitempty"`
}

// TimeoutsConfig bounds each kind of external call.
type TimeoutsConfig struct {
	Ingest   Duration `toml:"ingest,omitempty"`
	Generate Duration `toml:"generate,omitempty"`
	Judge    Duration `toml:"judge,omitempty"`
	Publish  Duration `toml:"publish,omitempty"`
}

// GitHubConfig configures commit ingestion.
type GitHubConfig struct {
	Username string `toml:"username,omitempty"`
	APIURL   string `toml:"api_url,omitempty"`
}

// ClaudeConfig configures prompt ingestion.
type ClaudeConfig struct {
	Dir         string `toml:"dir,omitempty"`
	Transcripts bool   `toml:"transcripts,omitempty"`
}

// XConfig configures the social channel.
type XConfig struct {
	Username string `toml:"username,omitempty"`
	APIURL   string `toml:"api_url,omitempty"`
}

// BlogConfig configures the static-site channel.
type BlogConfig struct {
	RepoPath  string `toml:"repo_path,omitempty"`
	PostsDir  string `toml:"posts_dir,omitempty"`
	IndexFile string `toml:"index_file,omitempty"`
	BaseURL   string `toml:"base_url,omitempty"`
	Author    string `toml:"author,omitempty"`
	Push      bool   `toml:"push,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen    string `toml:"listen,omitempty"`
	MaxDrafts uint   `toml:"max_drafts,omitempty"`
}

// VectorStoreConfig holds vector store settings. An empty provider disables
// knowledge recall.
type VectorStoreConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// KnowledgeConfig holds recall settings.
type KnowledgeConfig struct {
	Enabled bool `toml:"enabled,omitempty"`
	TopK    uint `toml:"top_k,omitempty"`
}

// EventsConfig selects where pipeline decision events go. An empty provider
// discards them.
type EventsConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("30m").
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string {
	if d == 0 {
		return ""
	}
	return time.Duration(d).String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatFloat(*field(c), 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			if v == "" {
				*field(c) = 0
				return nil
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if f < 0 || f > 1 {
				return fmt.Errorf("invalid value for %s: %v is outside [0,1]", name, f)
			}
			*field(c) = f
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			if v == "" {
				*field(c) = 0
				return nil
			}
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func durationKey(name string, field func(c *Config) *Duration) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return field(c).String() },
		set: func(c *Config, v string) error {
			if err := field(c).UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			return nil
		},
	}
}

// orderedKeys lists every supported key in TOML section order.
var orderedKeys = []string{
	"storage.driver",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"llm.provider",
	"llm.model",
	"llm.base_url",
	"judge.provider",
	"judge.model",
	"judge.base_url",
	"correlation.window",
	"correlation.floor",
	"correlation.min_confidence",
	"correlation.match_project",
	"gate.threshold",
	"pipeline.batch_commits",
	"pipeline.drain_queue_first",
	"pipeline.first_poll_window",
	"pipeline.retry_delay",
	"timeouts.ingest",
	"timeouts.generate",
	"timeouts.judge",
	"timeouts.publish",
	"github.username",
	"github.api_url",
	"claude.dir",
	"claude.transcripts",
	"x.username",
	"x.api_url",
	"blog.repo_path",
	"blog.posts_dir",
	"blog.index_file",
	"blog.base_url",
	"blog.author",
	"blog.push",
	"api.listen",
	"api.max_drafts",
	"vector_store.provider",
	"vector_store.target",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"knowledge.enabled",
	"knowledge.top_k",
	"events.provider",
	"events.brokers",
	"events.topic",
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":       stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"llm.provider": stringKey(func(c *Config) *string { return &c.LLM.Provider }),
	"llm.model":    stringKey(func(c *Config) *string { return &c.LLM.Model }),
	"llm.base_url": stringKey(func(c *Config) *string { return &c.LLM.BaseURL }),

	"judge.provider": stringKey(func(c *Config) *string { return &c.Judge.Provider }),
	"judge.model":    stringKey(func(c *Config) *string { return &c.Judge.Model }),
	"judge.base_url": stringKey(func(c *Config) *string { return &c.Judge.BaseURL }),

	"correlation.window":         durationKey("correlation.window", func(c *Config) *Duration { return &c.Correlation.Window }),
	"correlation.floor":          floatKey("correlation.floor", func(c *Config) *float64 { return &c.Correlation.Floor }),
	"correlation.min_confidence": floatKey("correlation.min_confidence", func(c *Config) *float64 { return &c.Correlation.MinConfidence }),
	"correlation.match_project":  boolKey("correlation.match_project", func(c *Config) *bool { return &c.Correlation.MatchProject }),

	"gate.threshold": floatKey("gate.threshold", func(c *Config) *float64 { return &c.Gate.Threshold }),

	"pipeline.batch_commits":     boolKey("pipeline.batch_commits", func(c *Config) *bool { return &c.Pipeline.BatchCommits }),
	"pipeline.drain_queue_first": boolKey("pipeline.drain_queue_first", func(c *Config) *bool { return &c.Pipeline.DrainQueueFirst }),
	"pipeline.first_poll_window": durationKey("pipeline.first_poll_window", func(c *Config) *Duration { return &c.Pipeline.FirstPollWindow }),
	"pipeline.retry_delay":       durationKey("pipeline.retry_delay", func(c *Config) *Duration { return &c.Pipeline.RetryDelay }),

	"timeouts.ingest":   durationKey("timeouts.ingest", func(c *Config) *Duration { return &c.Timeouts.Ingest }),
	"timeouts.generate": durationKey("timeouts.generate", func(c *Config) *Duration { return &c.Timeouts.Generate }),
	"timeouts.judge":    durationKey("timeouts.judge", func(c *Config) *Duration { return &c.Timeouts.Judge }),
	"timeouts.publish":  durationKey("timeouts.publish", func(c *Config) *Duration { return &c.Timeouts.Publish }),

	"github.username": stringKey(func(c *Config) *string { return &c.GitHub.Username }),
	"github.api_url":  stringKey(func(c *Config) *string { return &c.GitHub.APIURL }),

	"claude.dir":         stringKey(func(c *Config) *string { return &c.Claude.Dir }),
	"claude.transcripts": boolKey("claude.transcripts", func(c *Config) *bool { return &c.Claude.Transcripts }),

	"x.username": stringKey(func(c *Config) *string { return &c.X.Username }),
	"x.api_url":  stringKey(func(c *Config) *string { return &c.X.APIURL }),

	"blog.repo_path":  stringKey(func(c *Config) *string { return &c.Blog.RepoPath }),
	"blog.posts_dir":  stringKey(func(c *Config) *string { return &c.Blog.PostsDir }),
	"blog.index_file": stringKey(func(c *Config) *string { return &c.Blog.IndexFile }),
	"blog.base_url":   stringKey(func(c *Config) *string { return &c.Blog.BaseURL }),
	"blog.author":     stringKey(func(c *Config) *string { return &c.Blog.Author }),
	"blog.push":       boolKey("blog.push", func(c *Config) *bool { return &c.Blog.Push }),

	"api.listen":     stringKey(func(c *Config) *string { return &c.API.Listen }),
	"api.max_drafts": uintKey("api.max_drafts", func(c *Config) *uint { return &c.API.MaxDrafts }),

	"vector_store.provider": stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":   stringKey(func(c *Config) *string { return &c.VectorStore.Target }),

	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),

	"knowledge.enabled": boolKey("knowledge.enabled", func(c *Config) *bool { return &c.Knowledge.Enabled }),
	"knowledge.top_k":   uintKey("knowledge.top_k", func(c *Config) *uint { return &c.Knowledge.TopK }),

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers":  stringKey(func(c *Config) *string { return &c.Events.Brokers }),
	"events.topic":    stringKey(func(c *Config) *string { return &c.Events.Topic }),
}
