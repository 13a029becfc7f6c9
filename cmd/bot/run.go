package main

import (
	"context"

	"digit_bot/internal/metrics"
	"digit_bot/internal/modules/config"
	"digit_bot/internal/modules/eventbus"
	"digit_bot/internal/modules/exchange"
	"digit_bot/internal/modules/health"
	"digit_bot/internal/modules/strategy"
	"digit_bot/internal/modules/ticks"
	"digit_bot/internal/notify"
	"digit_bot/pkg/tracing"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trading engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			opts := baseOptions(cfg)
			opts = append(opts,
				fx.Provide(
					metrics.NewRegistry,
					newMetrics,
				),
				fx.Invoke(initTracing),
				eventbus.Module(),
				ticks.Module(),
				exchange.Module(),
				strategy.Module(),
				health.Module(),
				notify.Module(),
				fx.Invoke(observeMetrics),
			)

			// Run ждёт SIGINT/SIGTERM и останавливает модули в обратном порядке
			fx.New(opts...).Run()
			return nil
		},
	}
}

func initTracing(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) error {
	_, closeFn, err := tracing.InitTracer(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Service.Name,
		Host:        cfg.Tracing.Host,
		Port:        cfg.Tracing.Port,
	}, log)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeFn()
			return nil
		},
	})
	return nil
}
