package eventbus

import (
	"digit_bot/internal/modules/eventbus/service"

	"go.uber.org/fx"
)

// Module общая шина событий движка.
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(
			service.NewBus, // *service.Bus
		),
	)
}
