package relay

import (
	"context"

	"digit_bot/internal/modules/relay/service"

	"go.uber.org/fx"
)

// Module WebSocket relay к бирже.
func Module() fx.Option {
	return fx.Module("relay",
		fx.Provide(
			service.NewBridge, // *service.Bridge
			service.NewRouter, // *mux.Router
			service.NewServer, // *service.Server
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.Server) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					s.Start()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					return s.Stop(ctx)
				},
			})
		}),
	)
}
