package main

import (
	"context"
	"fmt"

	"github.com/2beens/fitplan/internal"
	"github.com/2beens/fitplan/internal/config"
	"github.com/2beens/fitplan/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
)

func dbParams(cfg *config.Config) db.NewDBPoolParams {
	return db.NewDBPoolParams{
		DBHost:     cfg.PostgresHost,
		DBPort:     cfg.PostgresPort,
		DBName:     cfg.PostgresDBName,
		DBUser:     cfg.PostgresUser,
		DBPassword: cfg.PostgresPassword,
	}
}

// openServices wires the generator for one-shot commands. A database pool is
// opened when persistence is needed or exercises come from postgres.
func openServices(ctx context.Context, cfg *config.Config, needDB bool) (*internal.Services, func(), error) {
	var pool *pgxpool.Pool
	if needDB || cfg.ExerciseCatalog == config.ExerciseCatalogPostgres {
		var err error
		pool, err = db.NewDBPool(ctx, dbParams(cfg))
		if err != nil {
			return nil, nil, fmt.Errorf("new db pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping db: %w", err)
		}
	}

	services, err := internal.NewServices(ctx, internal.ServicesParams{
		Config: cfg,
		DBPool: pool,
	})
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, nil, err
	}

	return services, func() {
		services.Close(context.Background())
		if pool != nil {
			pool.Close()
		}
	}, nil
}
