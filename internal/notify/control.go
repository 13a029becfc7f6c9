package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	strategy "digit_bot/internal/modules/strategy/service"
)

// Controller команды движку из чата.
type Controller interface {
	StartRun(ctx context.Context) (string, error)
	StopRun(ctx context.Context) error
	BuyNow(ctx context.Context) error
	Snapshot(ctx context.Context) (strategy.Snapshot, error)
}

const commandTimeout = 30 * time.Second

// HandleCommand ответ на команду. Пустая строка, если команда не наша.
// Результаты /run и /stop придут отдельными уведомлениями из шины.
func HandleCommand(ctx context.Context, c Controller, cmd string) string {
	if c == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch cmd {
	case "status":
		snap, err := c.Snapshot(ctx)
		if err != nil {
			return "❗️ " + err.Error()
		}
		return FormatSnapshot(snap)
	case "run":
		if _, err := c.StartRun(ctx); err != nil {
			return "❗️ Не запустился: " + err.Error()
		}
		return ""
	case "stop":
		if err := c.StopRun(ctx); err != nil {
			return "❗️ " + err.Error()
		}
		return ""
	case "buy":
		if err := c.BuyNow(ctx); err != nil {
			return "❗️ " + err.Error()
		}
		return "🛒 Покупка отправлена"
	case "help", "start":
		return "/status /run /stop /buy"
	}
	return ""
}

func FormatSnapshot(s strategy.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*📊 %s* (%s)\n", s.State, s.Session)
	fmt.Fprintf(&b, "Счёт: `%s`\n", orDash(s.Account))
	fmt.Fprintf(&b, "%s %s\n", s.Settings.Symbol, s.Settings.ContractType)
	if s.RunID != "" {
		fmt.Fprintf(&b, "Прогон `%s`: ставка `%s`, итог `%s`\n", short(s.RunID), f2(s.Stake), f2(s.CumulativeProfit))
		fmt.Fprintf(&b, "Сделок %d (W %d / L %d)\n", s.Trades, s.Wins, s.Losses)
	}
	if s.Contract != nil {
		fmt.Fprintf(&b, "Контракт #%d: %s\n", s.Contract.ID, s.Contract.Status)
	}
	if len(s.Digits.Digits) > 0 {
		b.WriteString("Цифры: `")
		for i, d := range s.Digits.Digits {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d", d)
		}
		b.WriteString("`\n")
	}
	return b.String()
}
