package notify

import (
	"context"

	"digit_bot/internal/models"
	"digit_bot/internal/modules/config"
	bus "digit_bot/internal/modules/eventbus/service"
	strategy "digit_bot/internal/modules/strategy/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewNotifier телеграм, если задан токен; иначе лог.
func NewNotifier(cfg *config.Config, log *zap.Logger) (Notifier, error) {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		log.Info("telegram disabled, notifications go to log")
		return NewLog(log), nil
	}
	tg, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
	if err != nil {
		log.Warn("telegram init failed, notifications go to log", zap.Error(err))
		return NewLog(log), nil
	}
	return tg, nil
}

// Observer слушатель шины: форматирует событие и отправляет.
func Observer(n Notifier) bus.Listener {
	return func(ev models.TradingEvent) {
		if msg, ok := Format(ev); ok {
			n.Send(msg)
		}
	}
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			NewNotifier, // Notifier
		),
		fx.Invoke(func(lc fx.Lifecycle, n Notifier, b *bus.Bus, e *strategy.Engine, log *zap.Logger) {
			ctx, cancel := context.WithCancel(context.Background())
			// отправка в телеграм медленная, цикл движка её ждать не должен
			id := b.AddListener(bus.Async(ctx, log, Observer(n)))
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					return n.Start(ctx, e)
				},
				OnStop: func(context.Context) error {
					b.RemoveListener(id)
					cancel()
					n.Stop()
					return nil
				},
			})
		}),
	)
}
