// Package persistence selects the credential store backend from configuration.
package persistence

import (
	"log/slog"

	"rssauth/config"
	"rssauth/internal/domain/repository"
	"rssauth/internal/errors"
	"rssauth/internal/infra/persistence/memory"
	"rssauth/internal/infra/persistence/postgres"

	"go.uber.org/fx"
)

// Params defines the required parameters
type Params struct {
	fx.In
	fx.Lifecycle

	Config *config.Config
	Logger *slog.Logger
}

// NewUserRepository builds the UserRepository for store.driver.
func NewUserRepository(params Params) (repository.UserRepository, error) {
	driver := config.StoreDriverPostgres
	if params.Config.Store != nil && params.Config.Store.Driver != "" {
		driver = params.Config.Store.Driver
	}

	switch driver {
	case config.StoreDriverPostgres:
		db, err := postgres.New(postgres.Params{
			Lifecycle: params.Lifecycle,
			Config:    params.Config,
			Logger:    params.Logger,
		})
		if err != nil {
			return nil, err
		}

		return postgres.NewUserRepository(db, params.Config), nil
	case config.StoreDriverMemory:
		params.Logger.Warn("Using in-memory credential store; accounts are lost on restart")

		return memory.NewUserRepository(), nil
	default:
		return nil, errors.Errorf("unknown store driver %q", driver)
	}
}
