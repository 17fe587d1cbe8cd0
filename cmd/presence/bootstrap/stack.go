package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/presence/pkg/blog"
	"github.com/papercomputeco/presence/pkg/config"
	"github.com/papercomputeco/presence/pkg/correlate"
	"github.com/papercomputeco/presence/pkg/credentials"
	"github.com/papercomputeco/presence/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/presence/pkg/embeddings/utils"
	"github.com/papercomputeco/presence/pkg/eventstream"
	"github.com/papercomputeco/presence/pkg/eventstream/kafka"
	"github.com/papercomputeco/presence/pkg/eventstream/nop"
	"github.com/papercomputeco/presence/pkg/gate"
	"github.com/papercomputeco/presence/pkg/git"
	"github.com/papercomputeco/presence/pkg/ingest"
	"github.com/papercomputeco/presence/pkg/ingest/claude"
	"github.com/papercomputeco/presence/pkg/ingest/github"
	"github.com/papercomputeco/presence/pkg/knowledge"
	"github.com/papercomputeco/presence/pkg/llm"
	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/pipeline"
	"github.com/papercomputeco/presence/pkg/publish"
	"github.com/papercomputeco/presence/pkg/social/x"
	"github.com/papercomputeco/presence/pkg/storage"
	"github.com/papercomputeco/presence/pkg/synth"
	vectorutils "github.com/papercomputeco/presence/pkg/vector/utils"
)

// Stack is the wired component graph for one command invocation.
type Stack struct {
	Store     storage.Driver
	Pipeline  *pipeline.Pipeline
	Publisher *publish.Publisher
	Events    eventstream.Publisher

	// Knowledge is nil when recall is disabled.
	Knowledge *knowledge.Base

	logger  *slog.Logger
	closers []func() error
}

// Options selects what Build wires.
type Options struct {
	Config    *config.Config
	ConfigDir string
	Logger    *slog.Logger

	// Store reuses an open store instead of opening the configured one.
	Store storage.Driver
}

// Build wires every component the configuration enables. Channels without
// credentials are left out; drafts for them stay queued.
func Build(ctx context.Context, o Options) (*Stack, error) {
	cfg := o.Config
	log := o.Logger
	if log == nil {
		log = logger.Nop()
	}

	s := &Stack{logger: log}
	ok := false
	defer func() {
		if !ok {
			_ = s.Close()
		}
	}()

	s.Store = o.Store
	if s.Store == nil {
		store, err := OpenStore(ctx, cfg, o.ConfigDir, log)
		if err != nil {
			return nil, err
		}
		s.Store = store
		s.closers = append(s.closers, store.Close)
	}

	creds, err := credentials.NewManager(o.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	events, err := newEvents(cfg, logger.Component(log, "eventstream"))
	if err != nil {
		return nil, err
	}
	s.Events = events
	s.closers = append(s.closers, events.Close)

	if cfg.Knowledge.Enabled {
		kb, err := OpenKnowledge(cfg, o.ConfigDir, logger.Component(log, "knowledge"))
		if err != nil {
			return nil, err
		}
		s.Knowledge = kb
		s.closers = append(s.closers, kb.Close)
	}

	s.Publisher, err = newPublisher(cfg, creds, s, logger.Component(log, "publish"))
	if err != nil {
		return nil, err
	}

	gen, err := llm.NewCaller(llm.CallerConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		CredMgr:  creds,
		Timeout:  cfg.Timeouts.Generate.D(),
		Logger:   logger.Component(log, "synth"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating generation model: %w", err)
	}

	judgeCfg := cfg.JudgeLLM()
	judgeCall, err := llm.NewCaller(llm.CallerConfig{
		Provider: judgeCfg.Provider,
		Model:    judgeCfg.Model,
		BaseURL:  judgeCfg.BaseURL,
		CredMgr:  creds,
		Timeout:  cfg.Timeouts.Judge.D(),
		Logger:   logger.Component(log, "gate"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating judge model: %w", err)
	}

	correlator, err := correlate.New(s.Store, correlate.Options{
		Window:        cfg.Correlation.Window.D(),
		Floor:         cfg.Correlation.Floor,
		MinConfidence: cfg.Correlation.MinConfidence,
		MatchProject:  cfg.Correlation.MatchProject,
		ProjectName:   new(git.RepoNames).Name,
	})
	if err != nil {
		return nil, err
	}

	ingester, err := newIngester(cfg, creds, s.Store, logger.Component(log, "ingest"))
	if err != nil {
		return nil, err
	}

	pc := pipeline.Config{
		Store:       s.Store,
		Ingester:    ingester,
		Correlator:  correlator,
		Synthesizer: synth.New(synth.NewLLMGenerator(gen), synth.WithTimeout(cfg.Timeouts.Generate.D()), synth.WithLogger(logger.Component(log, "synth"))),
		Gate: gate.New(gate.NewLLMJudge(judgeCall), s.Store,
			gate.WithThreshold(cfg.Gate.Threshold),
			gate.WithTimeout(cfg.Timeouts.Judge.D()),
			gate.WithLogger(logger.Component(log, "gate")),
		),
		Publisher:       s.Publisher,
		Events:          s.Events,
		BatchCommits:    cfg.Pipeline.BatchCommits,
		DrainQueueFirst: cfg.Pipeline.DrainQueueFirst,
		RecordPass: func(pass string, rec dotdir.PassRecord) error {
			return dotdir.NewManager().RecordPass(pass, rec, o.ConfigDir)
		},
		Logger: logger.Component(log, "pipeline"),
	}
	if s.Knowledge != nil {
		pc.Recall = s.Knowledge
	}

	s.Pipeline, err = pipeline.New(pc)
	if err != nil {
		return nil, err
	}

	ok = true
	return s, nil
}

// Close releases everything Build opened, newest first.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func newIngester(cfg *config.Config, creds *credentials.Manager, store storage.Driver, log *slog.Logger) (*ingest.Ingester, error) {
	var commits ingest.CommitSource
	if cfg.GitHub.Username != "" {
		gh, err := creds.Resolve(credentials.ProviderGitHub)
		if err != nil {
			return nil, err
		}
		client, err := github.New(github.Config{
			APIURL:   cfg.GitHub.APIURL,
			Username: cfg.GitHub.Username,
			Token:    gh.APIKey,
			Logger:   log,
		})
		if err != nil {
			return nil, err
		}
		commits = client
	} else {
		log.Warn("github.username is not set; commits will not be ingested")
	}

	prompts, err := claude.NewReader(cfg.Claude.Dir, cfg.Claude.Transcripts, log)
	if err != nil {
		return nil, err
	}

	return ingest.New(store, commits, prompts,
		ingest.WithFirstPollWindow(cfg.Pipeline.FirstPollWindow.D()),
		ingest.WithTimeout(cfg.Timeouts.Ingest.D()),
		ingest.WithLogger(log),
	), nil
}

func newPublisher(cfg *config.Config, creds *credentials.Manager, s *Stack, log *slog.Logger) (*publish.Publisher, error) {
	opts := []publish.Option{
		publish.WithEvents(s.Events),
		publish.WithTimeout(cfg.Timeouts.Publish.D()),
		publish.WithRetryDelay(cfg.Pipeline.RetryDelay.D()),
		publish.WithLogger(log),
	}

	xc, err := creds.Resolve(credentials.ProviderX)
	if err != nil {
		return nil, err
	}
	switch {
	case xc.Empty():
		log.Warn("no X credentials; posts and threads stay queued", "hint", "presence auth x")
	case cfg.X.Username == "":
		log.Warn("x.username is not set; posts and threads stay queued")
	default:
		social, err := x.New(x.Config{
			APIURL:     cfg.X.APIURL,
			Username:   cfg.X.Username,
			Credential: xc,
			OnRefresh: func(access, refresh string, expiry time.Time) error {
				return creds.StoreToken(credentials.ProviderX, access, refresh, expiry)
			},
			Logger: log,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, publish.WithSocial(social))
	}

	if cfg.Blog.RepoPath != "" {
		w, err := blog.New(blog.Config{
			RepoPath:  cfg.Blog.RepoPath,
			PostsDir:  cfg.Blog.PostsDir,
			IndexFile: cfg.Blog.IndexFile,
			BaseURL:   cfg.Blog.BaseURL,
			Author:    cfg.Blog.Author,
			Push:      cfg.Blog.Push,
			Logger:    log,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, publish.WithBlog(w))
	} else {
		log.Warn("blog.repo_path is not set; articles stay queued")
	}

	if s.Knowledge != nil {
		opts = append(opts, publish.WithIndexer(s.Knowledge))
	}

	return publish.New(s.Store, opts...), nil
}

func newEvents(cfg *config.Config, log *slog.Logger) (eventstream.Publisher, error) {
	switch strings.ToLower(cfg.Events.Provider) {
	case "", "none", "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: splitList(cfg.Events.Brokers),
			Topic:   cfg.Events.Topic,
		}, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", cfg.Events.Provider)
	}
}

// OpenKnowledge opens the embedder and vector store behind knowledge recall.
// A sqlite-vec store without a target lives in the presence directory.
func OpenKnowledge(cfg *config.Config, configDir string, log *slog.Logger) (*knowledge.Base, error) {
	if cfg.VectorStore.Provider == "" {
		return nil, errors.New("knowledge.enabled requires vector_store.provider")
	}

	defaultPath, err := dotdir.NewManager().KnowledgePath(configDir)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddingutils.NewEmbedder(cfg.Embedding, log)
	if err != nil {
		return nil, err
	}

	vd, err := vectorutils.NewVectorDriver(vectorutils.Options{
		Store:       cfg.VectorStore,
		Dimensions:  cfg.Embedding.Dimensions,
		DefaultPath: defaultPath,
		Logger:      log,
	})
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	return knowledge.New(knowledge.Config{
		Embedder:     embedder,
		VectorDriver: vd,
		TopK:         cfg.Knowledge.TopK,
		Async:        true,
		Logger:       log,
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
