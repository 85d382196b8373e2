// Package bootstrap wires configuration into a running pipeline: the
// completer, the storage backend, the background queue and the services
// built on top of them. Both binaries start from here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PabloGalante/farum-companion/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/farum-companion/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/farum-companion/internal/adapters/storage/memory"
	pgstore "github.com/PabloGalante/farum-companion/internal/adapters/storage/postgres"
	sqlitestore "github.com/PabloGalante/farum-companion/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/farum-companion/internal/app/agentflow"
	"github.com/PabloGalante/farum-companion/internal/app/conversation"
	journalapp "github.com/PabloGalante/farum-companion/internal/app/journal"
	"github.com/PabloGalante/farum-companion/internal/app/tasks"
	"github.com/PabloGalante/farum-companion/internal/app/tools"
	"github.com/PabloGalante/farum-companion/internal/config"
	"github.com/PabloGalante/farum-companion/internal/domain"
	"github.com/PabloGalante/farum-companion/internal/observability"
)

// taskTimeout bounds one background side effect.
const taskTimeout = 10 * time.Second

// Stores is one storage backend seen through the domain ports.
type Stores struct {
	Sessions  domain.SessionStore
	Messages  domain.MessageStore
	Journal   domain.JournalStore
	Profiles  domain.ProfileStore
	Sentiment domain.SentimentLog

	close func() error
}

// App is the wired application.
type App struct {
	Config       *config.Config
	Orchestrator *agentflow.Orchestrator
	Conversation *conversation.Service
	Journal      *journalapp.Service
	Tasks        *tasks.Queue
	Stores       Stores
}

// New builds the App described by cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := observability.Logger()

	completer, err := NewCompleter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("completer ready", slog.String("provider", cfg.LLMProvider), slog.String("model", cfg.ModelName))

	stores, err := OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", slog.String("backend", cfg.StorageBackend))

	queue := tasks.New(cfg.TaskQueueSize, cfg.TaskWorkers, taskTimeout)

	orch, err := agentflow.New(agentflow.Deps{
		Completer: completer,
		Profiles:  stores.Profiles,
		Sentiment: stores.Sentiment,
		Journal:   tools.NewJournalTool(stores.Journal),
		Tasks:     queue,
		Metrics:   observability.NewPipelineMetrics(),
	}, agentflow.Options{
		Model:               cfg.ModelName,
		MaxCompletionTokens: cfg.MaxCompletionTokens,
		MaxHistory:          cfg.MaxHistory,
		MaxMessageLength:    cfg.MaxMessageLength,
		MaxResponseLength:   cfg.MaxResponseLength,
		GenerationTimeout:   cfg.GenerationTimeout,
		CacheTTL:            cfg.CacheTTL,
		CacheMaxAge:         cfg.CacheMaxAge,
		CacheLockTimeout:    cfg.CacheLockTimeout,
	})
	if err != nil {
		_ = queue.Close(ctx)
		_ = stores.Close()
		return nil, err
	}

	return &App{
		Config:       cfg,
		Orchestrator: orch,
		Conversation: conversation.NewService(orch, stores.Sessions, stores.Messages),
		Journal:      journalapp.NewService(stores.Journal),
		Tasks:        queue,
		Stores:       stores,
	}, nil
}

// Start launches the cache sweepers and the idle-state janitor until ctx is
// done.
func (a *App) Start(ctx context.Context) {
	a.Orchestrator.StartSweepers(ctx, a.Config.CacheSweepInterval)
	go a.Orchestrator.RunJanitor(ctx, a.Config.CacheSweepInterval, a.Config.ProtocolMaxIdle)
}

// Close drains the task queue, then releases the pipeline and the stores.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Tasks.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain tasks: %w", err))
	}
	a.Orchestrator.Close()
	if err := a.Stores.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stores: %w", err))
	}
	return errors.Join(errs...)
}

// NewCompleter returns the completer of the configured provider.
func NewCompleter(ctx context.Context, cfg *config.Config) (domain.Completer, error) {
	switch cfg.LLMProvider {
	case "vertex":
		return llm.NewVertexClient(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.ModelName)
	case "openai":
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ModelName, cfg.GenerationTimeout), nil
	case "mock":
		return llm.NewMockLLM(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown llm provider %q", cfg.LLMProvider)
	}
}

// OpenStores opens the configured storage backend. Backends without
// session storage keep sessions and messages in memory.
func OpenStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (Stores, error) {
	switch cfg.StorageBackend {
	case "sqlite":
		st, err := sqlitestore.Open(ctx, cfg.SQLiteDir)
		if err != nil {
			return Stores{}, fmt.Errorf("bootstrap: open sqlite: %w", err)
		}
		return Stores{
			Sessions: st, Messages: st, Journal: st, Profiles: st, Sentiment: st,
			close: st.Close,
		}, nil

	case "postgres":
		st, err := pgstore.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return Stores{}, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		return Stores{
			Sessions:  memstore.NewSessionStore(),
			Messages:  memstore.NewMessageStore(),
			Journal:   st,
			Profiles:  st,
			Sentiment: st,
			close:     func() error { st.Close(); return nil },
		}, nil

	case "firestore":
		st, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return Stores{}, fmt.Errorf("bootstrap: open firestore: %w", err)
		}
		return Stores{
			Sessions: st, Messages: st, Journal: st, Profiles: st, Sentiment: st,
			close: st.Close,
		}, nil

	default:
		profiles := memstore.NewProfileStore()
		return Stores{
			Sessions:  memstore.NewSessionStore(),
			Messages:  memstore.NewMessageStore(),
			Journal:   memstore.NewJournalStore(),
			Profiles:  profiles,
			Sentiment: profiles,
		}, nil
	}
}

// Close releases the backend, if it holds anything.
func (s Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
