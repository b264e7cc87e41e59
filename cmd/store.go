package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/krx-sync/internal/config"
	"github.com/sells-group/krx-sync/internal/store"
)

// openStore opens the configured backend. Callers own the returned store and
// must Close it.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if err := c.ValidateStore(); err != nil {
		return nil, err
	}

	switch c.Store.Driver {
	case "sqlite":
		st, err := store.NewSQLite(c.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		zap.L().Info("opened sqlite store", zap.String("path", c.Store.SQLitePath))
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, c.DSN(), &c.Store.Pool)
		if err != nil {
			return nil, err
		}
		zap.L().Info("connected to postgres")
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}
