package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fertility-cds-server/internal/cache"
	"github.com/fertility-cds-server/internal/config"
	"github.com/fertility-cds-server/internal/domain"
	"github.com/fertility-cds-server/internal/protocol"
	"github.com/fertility-cds-server/internal/repository"
	"github.com/fertility-cds-server/internal/service"
	"github.com/fertility-cds-server/internal/session"
)

// app holds the wired components of a running server.
type app struct {
	cfg      *domain.Config
	logger   *logrus.Logger
	engine   *service.Engine
	store    repository.Store
	drafts   *cache.DraftCache
	sessions *session.Manager
}

// loadConfig reads and validates configuration named by the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	path, _ := cmd.Flags().GetString("config")
	manager, err := config.NewManager(path)
	if err != nil {
		return nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return manager, nil
}

// loadEngine loads the configured protocol bundle and builds the engine.
func loadEngine(cfg *domain.Config, logger *logrus.Logger) (*service.Engine, error) {
	bundle, err := protocol.Load(cfg.Protocol.Path)
	if err != nil {
		return nil, err
	}
	if problems := bundle.Problems(); len(problems) > 0 {
		logger.WithField("problems", problems).Warn("Protocol bundle has problems")
	}
	if err := bundle.Validate(cfg.Protocol.Strict); err != nil {
		return nil, err
	}

	engine := service.NewEngine(bundle, logger)
	logger.WithFields(logrus.Fields{
		"protocol": engine.Protocol,
		"nodes":    len(bundle.Graph.Nodes),
		"catalog":  len(bundle.Catalog),
	}).Info("Protocol loaded")
	return engine, nil
}

// newApp wires engine, store, draft cache and session manager. The draft
// cache is optional: when Redis is unreachable sessions live in memory only.
func newApp(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*app, error) {
	engine, err := loadEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := repository.NewStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open prescription store: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, engine: engine, store: store}

	var drafts session.DraftCache
	if cfg.Cache.RedisURL != "" {
		draftCache, err := cache.NewDraftCache(ctx, cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Draft cache unavailable, sessions will not survive restarts")
		} else {
			a.drafts = draftCache
			drafts = draftCache
		}
	}

	a.sessions = session.NewManager(engine, store, drafts, cfg.Session, logger)
	return a, nil
}

func (a *app) Close() {
	if a.drafts != nil {
		if err := a.drafts.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close draft cache")
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close prescription store")
	}
}
