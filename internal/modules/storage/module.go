package storage

import (
	"context"

	"digit_bot/internal/modules/config"
	"digit_bot/internal/modules/storage/service"
	"digit_bot/pkg/db"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type storeParams struct {
	fx.In

	Cfg *config.Config
	Log *zap.Logger
	Tx  *db.PgTxManager `optional:"true"`
}

// NewStore по storage.driver. Для postgres нужен postgres.Module().
func NewStore(p storeParams) (service.Store, error) {
	if p.Cfg.Storage.Driver == "postgres" && p.Tx != nil {
		s := service.NewPgStore(p.Tx)
		if err := s.Migrate(context.Background()); err != nil {
			return nil, err
		}
		p.Log.Info("state store: postgres")
		return s, nil
	}
	p.Log.Info("state store: file", zap.String("path", p.Cfg.Storage.Path))
	return service.NewFileStore(p.Cfg.Storage.Path), nil
}

func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(
			NewStore, // service.Store
		),
	)
}
