package main

import (
	"digit_bot/internal/metrics"
	"digit_bot/internal/modules/config"
	"digit_bot/internal/modules/relay"
	"digit_bot/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// relay отдельный процесс: браузерный клиент ходит к бирже через него.
func main() {
	fx.New(
		config.Module(),
		fx.Provide(
			func(cfg *config.Config) (*zap.Logger, error) {
				return logger.New(cfg.Logging.Level, "digit_relay")
			},
			metrics.NewRegistry,
			func(reg *prometheus.Registry) *metrics.Metrics { return metrics.New(reg) },
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		relay.Module(),
	).Run()
}
