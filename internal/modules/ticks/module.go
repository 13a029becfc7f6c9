package ticks

import (
	"digit_bot/internal/modules/ticks/service"

	"go.uber.org/fx"
)

// Module пайплайн тиков: цифра, история, частоты.
func Module() fx.Option {
	return fx.Module("ticks",
		fx.Provide(
			service.NewPipeline, // *service.Pipeline
		),
	)
}
