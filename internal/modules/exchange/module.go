package exchange

import (
	"context"

	"digit_bot/internal/modules/exchange/service"

	"go.uber.org/fx"
)

// Module сессия с биржей. Подключение инициирует движок (ему нужен аккаунт),
// здесь только корректное закрытие.
func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(
			service.NewSession, // *service.Session
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.Session) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					return s.Stop(ctx)
				},
			})
		}),
	)
}
