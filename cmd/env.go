package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/meridianhealth/claims-cli/internal/adjudicate"
	"github.com/meridianhealth/claims-cli/internal/monitoring"
	"github.com/meridianhealth/claims-cli/internal/store"
)

// env bundles the store and engine a command runs against.
type env struct {
	Store   store.Store
	Engine  *adjudicate.Engine
	Metrics *monitoring.Collector
}

func (e *env) Close() {
	_ = e.Store.Close()
}

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "claims.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv opens the store, runs migrations and builds the engine.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	metrics := monitoring.NewCollector()
	return &env{
		Store:   st,
		Engine:  adjudicate.New(&cfg.Adjudication, st, metrics),
		Metrics: metrics,
	}, nil
}
