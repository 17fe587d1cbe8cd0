package config

import "time"

const (
	defaultStorageDriver = "sqlite"
	defaultProvider      = "ollama"
	defaultUpstream      = "http://localhost:11434"
	defaultAPIListen     = ":8082"
	defaultAPIMaxDrafts  = 200

	defaultWindow    = Duration(30 * time.Minute)
	defaultFloor     = 0.1
	defaultThreshold = 0.7

	defaultFirstPollWindow = Duration(90 * time.Minute)

	defaultIngestTimeout   = Duration(30 * time.Second)
	defaultGenerateTimeout = Duration(90 * time.Second)
	defaultJudgeTimeout    = Duration(60 * time.Second)
	defaultPublishTimeout  = Duration(30 * time.Second)

	defaultGitHubAPI = "https://api.github.com"
	defaultXAPI      = "https://api.x.com"

	defaultPostsDir  = "posts"
	defaultIndexFile = "index.html"

	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768
	defaultKnowledgeTopK       = 3

	defaultEventsTopic = "presence.decisions"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		LLM: LLMConfig{
			Provider: defaultProvider,
		},
		Correlation: CorrelationConfig{
			Window: defaultWindow,
			Floor:  defaultFloor,
		},
		Gate: GateConfig{
			Threshold: defaultThreshold,
		},
		Pipeline: PipelineConfig{
			FirstPollWindow: defaultFirstPollWindow,
		},
		Timeouts: TimeoutsConfig{
			Ingest:   defaultIngestTimeout,
			Generate: defaultGenerateTimeout,
			Judge:    defaultJudgeTimeout,
			Publish:  defaultPublishTimeout,
		},
		GitHub: GitHubConfig{
			APIURL: defaultGitHubAPI,
		},
		X: XConfig{
			APIURL: defaultXAPI,
		},
		Blog: BlogConfig{
			PostsDir:  defaultPostsDir,
			IndexFile: defaultIndexFile,
		},
		API: APIConfig{
			Listen:    defaultAPIListen,
			MaxDrafts: defaultAPIMaxDrafts,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultProvider,
			Target:     defaultUpstream,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Knowledge: KnowledgeConfig{
			TopK: defaultKnowledgeTopK,
		},
		Events: EventsConfig{
			Topic: defaultEventsTopic,
		},
	}
}
