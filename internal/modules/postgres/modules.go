package postgres

import (
	"context"

	"digit_bot/internal/modules/config"
	"digit_bot/pkg/db"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewTxManager пул к мастеру + пинг. Закрывается на остановке приложения.
func NewTxManager(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*db.PgTxManager, error) {
	ctx := context.Background()
	poolMaster, err := db.NewPool(ctx, db.PoolConfig{
		DSN:      cfg.Storage.DSN,
		MaxConns: 4,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create poolMaster")
	}

	if err = poolMaster.Ping(ctx); err != nil {
		poolMaster.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	m := db.NewPgTxManager(poolMaster)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			m.Close()
			log.Info("postgres pool closed")
			return nil
		},
	})
	return m, nil
}

// Module подключается только при storage.driver=postgres.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			NewTxManager, // *db.PgTxManager
		),
	)
}
