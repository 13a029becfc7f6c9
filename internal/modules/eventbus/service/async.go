package service

import (
	"context"

	"digit_bot/internal/models"

	"go.uber.org/zap"
)

// backlogWarn каждые столько событий в очереди пишем warn.
const backlogWarn = 1024

// Async оборачивает медленного слушателя (телеграм, http) в свою горутину,
// чтобы он не тормозил цикл движка. Очередь без ограничения: события не
// теряются и приходят в порядке Emit, пока ctx жив.
func Async(ctx context.Context, log *zap.Logger, fn Listener) Listener {
	in := make(chan models.TradingEvent)
	out := make(chan models.TradingEvent)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-out:
				fn(ev)
			}
		}
	}()

	go func() {
		var queue []models.TradingEvent
		for {
			var (
				send chan models.TradingEvent
				next models.TradingEvent
			)
			if len(queue) > 0 {
				send, next = out, queue[0]
			}
			select {
			case <-ctx.Done():
				return
			case ev := <-in:
				queue = append(queue, ev)
				if len(queue)%backlogWarn == 0 {
					log.Warn("async listener is behind", zap.Int("backlog", len(queue)))
				}
			case send <- next:
				queue[0] = models.TradingEvent{}
				queue = queue[1:]
			}
		}
	}()

	return func(ev models.TradingEvent) {
		select {
		case in <- ev:
		case <-ctx.Done():
		}
	}
}
