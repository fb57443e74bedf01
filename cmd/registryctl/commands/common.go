// Package commands implements the registryctl subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gren-lang/package-registry/internal/config"
	"github.com/gren-lang/package-registry/internal/logger"
	"github.com/gren-lang/package-registry/internal/store"
)

// AppContext holds what every command needs.
type AppContext struct {
	Config config.Config
	Store  *store.Store
	Log    *slog.Logger
}

// NewAppContext loads configuration and connects to Postgres.
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log)

	st, err := store.New(ctx, cfg.PostgresDSN, store.WithRetryTable(cfg.RetrySchedule))
	if err != nil {
		return nil, err
	}
	return &AppContext{Config: cfg, Store: st, Log: log}, nil
}

func (ac *AppContext) Close() {
	if ac.Store != nil {
		ac.Store.Close()
	}
}
