package main

import (
	"digit_bot/internal/metrics"
	"digit_bot/internal/modules/config"
	bus "digit_bot/internal/modules/eventbus/service"
	"digit_bot/internal/modules/postgres"
	"digit_bot/internal/modules/storage"
	"digit_bot/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.NewConfig()
	}
	return config.Load(cfgFile)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(cfg.Logging.Level, cfg.Service.Name)
}

// baseOptions общее для run и accounts: конфиг, лог, хранилище.
func baseOptions(cfg *config.Config) []fx.Option {
	opts := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(newLogger),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		storage.Module(),
	}
	if cfg.Storage.Driver == "postgres" {
		opts = append(opts, postgres.Module())
	}
	return opts
}

func newMetrics(reg *prometheus.Registry) *metrics.Metrics { return metrics.New(reg) }

// observeMetrics метрики как обычный слушатель шины.
func observeMetrics(b *bus.Bus, m *metrics.Metrics) {
	b.AddListener(m.Observe)
}
