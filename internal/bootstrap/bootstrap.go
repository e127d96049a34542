package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/paperflow/internal/config"
	"github.com/kirillkom/paperflow/internal/core/ports"
	"github.com/kirillkom/paperflow/internal/core/usecase"
	"github.com/kirillkom/paperflow/internal/infrastructure/extractor"
	"github.com/kirillkom/paperflow/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/paperflow/internal/infrastructure/llm/openai"
	"github.com/kirillkom/paperflow/internal/infrastructure/queue/nats"
	"github.com/kirillkom/paperflow/internal/infrastructure/repository/memory"
	"github.com/kirillkom/paperflow/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/paperflow/internal/infrastructure/repository/redisstore"
	"github.com/kirillkom/paperflow/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/paperflow/internal/infrastructure/resilience"
	"github.com/kirillkom/paperflow/internal/infrastructure/source/gmail"
	"github.com/kirillkom/paperflow/internal/infrastructure/source/spool"
	"github.com/kirillkom/paperflow/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/paperflow/internal/infrastructure/vector/embedded"
	"github.com/kirillkom/paperflow/internal/infrastructure/vector/qdrant"
)

type Options struct {
	Logger   *slog.Logger
	Observer usecase.PipelineObserver
	// SkipQueue leaves NATS unconnected for one-shot processes.
	SkipQueue bool
}

type App struct {
	Config config.Config

	Queue    ports.MessageQueue
	Pipeline *usecase.PipelineRunner
	Corpus   *usecase.CorpusBuilder
	Index    ports.ExemplarIndex

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app, err := build(ctx, cfg, opts)
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// build returns the partially built App on failure so its closers still run.
func build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg}

	taxonomy, err := config.LoadTaxonomy(cfg.LabelsFile)
	if err != nil {
		return app, fmt.Errorf("load taxonomy: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	reasoningPolicy := resilience.DefaultConfig()
	reasoningPolicy.RateLimitPerSecond = cfg.ReasoningRatePerSec
	reasoningPolicy.RateLimitBurst = 1
	reasoningExecutor := resilience.NewExecutor(reasoningPolicy)

	var sqliteDB *sql.DB
	openSQLite := func() (*sql.DB, error) {
		if sqliteDB != nil {
			return sqliteDB, nil
		}
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqliteDB = db
		app.closers = append(app.closers, func() { _ = db.Close() })
		return db, nil
	}

	store, err := newStore(ctx, cfg, app, openSQLite)
	if err != nil {
		return app, err
	}

	switch strings.ToLower(cfg.IndexDriver) {
	case "qdrant":
		app.Index = qdrant.NewWithExecutor(cfg.QdrantURL, cfg.QdrantCollection, executor)
	case "embedded", "":
		db, err := openSQLite()
		if err != nil {
			return app, err
		}
		app.Index = embedded.NewIndex(db)
	default:
		return app, fmt.Errorf("unknown index driver %q", cfg.IndexDriver)
	}

	embedder := ollama.NewEmbedder(ollama.NewWithExecutor(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor))
	var backend ports.ReasoningBackend
	switch strings.ToLower(cfg.ReasoningProvider) {
	case "ollama", "":
		backend = ollama.NewReasoner(ollama.NewWithExecutor(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, reasoningExecutor))
	case "openai":
		backend = openai.NewReasoner(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}, reasoningExecutor)
	case "none":
		logger.Info("reasoning_disabled", "classifier", "keyword-only")
	default:
		return app, fmt.Errorf("unknown reasoning provider %q", cfg.ReasoningProvider)
	}

	var source ports.CandidateSource
	switch strings.ToLower(cfg.SourceDriver) {
	case "gmail":
		source, err = gmail.New(ctx, gmail.Config{
			CredentialsPath: cfg.GmailCredentialsPath,
			TokenPath:       cfg.GmailTokenPath,
			Query:           cfg.GmailQuery,
			MaxResults:      int64(cfg.GmailMaxResults),
		}, executor)
		if err != nil {
			return app, fmt.Errorf("init gmail source: %w", err)
		}
	case "spool", "":
		source, err = spool.New(cfg.InboxPath)
		if err != nil {
			return app, fmt.Errorf("init spool source: %w", err)
		}
	default:
		return app, fmt.Errorf("unknown source driver %q", cfg.SourceDriver)
	}

	files, err := localfs.New(cfg.OrganizedRoot)
	if err != nil {
		return app, fmt.Errorf("init organized storage: %w", err)
	}

	var publisher ports.RunPublisher
	if !opts.SkipQueue && strings.TrimSpace(cfg.NATSURL) != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Subjects{
			RunRequests: cfg.RunRequestSubject,
			RunSummary:  cfg.RunSummarySubject,
		}, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			return app, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
		if cfg.PublishRunSummary {
			publisher = queue
		}
	}

	textExtractor := extractor.New()
	classifier := usecase.NewTieredClassifier(taxonomy, embedder, app.Index, backend, usecase.ClassifierConfig{
		TopK:             cfg.ClassifierTopK,
		HighThreshold:    cfg.SimilarityHighThreshold,
		ReasoningTimeout: cfg.ReasoningTimeout,
	}, logger)

	dates := usecase.NewDateResolver()
	if backend != nil && cfg.DateReasoning {
		dates = usecase.NewReasoningDateResolver(backend, cfg.ReasoningTimeout, logger)
	}

	app.Pipeline = usecase.NewPipelineRunner(usecase.PipelineDeps{
		Source:     source,
		Extractor:  textExtractor,
		Classifier: classifier,
		Tracker:    usecase.NewIdentityTracker(store),
		Dedup:      usecase.NewContentDeduplicator(store),
		Organizer:  usecase.NewFileOrganizer(files.BasePath(), files, dates),
		Publisher:  publisher,
		Observer:   opts.Observer,
		Logger:     logger,
	})
	app.Corpus = usecase.NewCorpusBuilder(taxonomy, textExtractor, embedder, app.Index, logger)

	logger.Info("bootstrap_completed",
		"source_driver", cfg.SourceDriver,
		"store_driver", cfg.StoreDriver,
		"index_driver", cfg.IndexDriver,
		"reasoning_provider", cfg.ReasoningProvider,
		"labels", len(taxonomy.Labels()),
	)
	return app, nil
}

func newStore(ctx context.Context, cfg config.Config, app *App, openSQLite func() (*sql.DB, error)) (ports.PrunableStore, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case "sqlite", "":
		db, err := openSQLite()
		if err != nil {
			return nil, err
		}
		return sqlite.NewKVStore(db), nil
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
		store := postgres.NewKVStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, nil
	case "redis":
		client, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}
		app.closers = append(app.closers, func() { _ = client.Close() })
		return redisstore.NewKVStore(client), nil
	case "memory":
		return memory.NewKVStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
