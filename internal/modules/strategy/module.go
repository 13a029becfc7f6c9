package strategy

import (
	"context"

	bus "digit_bot/internal/modules/eventbus/service"
	"digit_bot/internal/modules/strategy/service"
	storage "digit_bot/internal/modules/storage/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func asEmitter(b *bus.Bus) service.Emitter { return b }

func asStore(s storage.Store) service.Store { return s }

// Module движок стратегии: свой цикл на всё время жизни приложения,
// прогоны запускаются командами (или сразу, если engine.auto_start).
func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			asEmitter,
			asStore,
			service.NewEngine, // *service.Engine
		),
		fx.Invoke(func(lc fx.Lifecycle, e *service.Engine, log *zap.Logger) {
			runCtx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := e.Load(ctx); err != nil {
						cancel()
						return err
					}
					go func() { _ = e.Run(runCtx) }()

					if e.AutoStart() {
						go func() {
							id, err := e.StartRun(runCtx)
							if err != nil {
								log.Error("auto start failed", zap.Error(err))
								return
							}
							log.Info("auto start", zap.String("run_id", id))
						}()
					}
					return nil
				},
				OnStop: func(ctx context.Context) error {
					cancel()
					select {
					case <-e.Done():
					case <-ctx.Done():
						return ctx.Err()
					}
					return nil
				},
			})
		}),
	)
}
