package main

import (
	"context"
	"fmt"

	"github.com/avvvet/chatbuddy/internal/catalog"
	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/dispatch"
	"github.com/avvvet/chatbuddy/internal/handlers"
	"github.com/avvvet/chatbuddy/internal/llm"
	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/avvvet/chatbuddy/internal/orchestrator"
	"github.com/avvvet/chatbuddy/internal/pipeline"
	"github.com/avvvet/chatbuddy/internal/registry"
	"go.uber.org/zap"
)

// app holds the wired service and everything that must be closed with it.
type app struct {
	catalog  *catalog.SQLiteRepository
	sessions *memory.Manager
	service  *pipeline.Service
}

func openCatalog(ctx context.Context) (*catalog.SQLiteRepository, error) {
	repo, err := catalog.NewSQLiteRepository(cfg.CatalogPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("catalog health check failed: %w", err)
	}
	return repo, nil
}

func openStore() (memory.Store, error) {
	switch cfg.StoreBackend {
	case "redis":
		store, err := memory.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("redis session store connected", zap.String("url", cfg.RedisURL))
		return store, nil
	default:
		logger.Info("in-memory session store", zap.Duration("ttl", cfg.SessionTTL))
		return memory.NewCacheStore(cfg.SessionTTL), nil
	}
}

func newApp(ctx context.Context) (*app, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
	}

	routing, err := config.LoadRouting(cfg.RoutingFile)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicTimeout)
	if err != nil {
		return nil, err
	}
	logger.Info("anthropic provider initialized", zap.String("model", cfg.AnthropicModel))

	repo, err := openCatalog(ctx)
	if err != nil {
		return nil, err
	}

	store, err := openStore()
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	sessions := memory.NewManager(store, logger)

	reg := registry.New()
	for name, h := range map[string]registry.Handler{
		config.ProductDiscoveryHandler: handlers.NewDiscoveryHandler(repo, logger),
		config.ProductDetailHandler:    handlers.NewDetailHandler(repo, provider, cfg.HistoryWindow, logger),
		config.ClarificationHandler:    handlers.NewClarificationHandler(logger),
	} {
		if err := reg.Register(name, h); err != nil {
			_ = repo.Close()
			_ = sessions.Close()
			return nil, err
		}
	}
	reg.Seal()
	if err := routing.Validate(reg.Has); err != nil {
		_ = repo.Close()
		_ = sessions.Close()
		return nil, fmt.Errorf("invalid routing tables: %w", err)
	}
	logger.Info("handlers registered", zap.Strings("handlers", reg.Names()))

	coordinator := dispatch.NewCoordinator(reg, dispatch.CoordinatorOptions{
		HandlerTimeout: cfg.HandlerTimeout,
		Parallel:       cfg.CoordinatorParallel,
	}, logger)

	p := pipeline.New(
		orchestrator.NewLLMClassifier(provider, logger),
		orchestrator.NewLLMPlanner(provider, reg.Capabilities(), logger),
		routing,
		reg.Has,
		coordinator,
		pipeline.Options{
			CollaboratorTimeout: cfg.CollaboratorTimeout,
			HistoryWindow:       cfg.HistoryWindow,
		},
		logger,
	)

	return &app{
		catalog:  repo,
		sessions: sessions,
		service:  pipeline.NewService(p, sessions, models.BusinessType(cfg.DefaultBusinessType), logger),
	}, nil
}

func (a *app) Close() {
	if err := a.sessions.Close(); err != nil {
		logger.Warn("error closing session store", zap.Error(err))
	}
	if err := a.catalog.Close(); err != nil {
		logger.Warn("error closing catalog", zap.Error(err))
	}
}
