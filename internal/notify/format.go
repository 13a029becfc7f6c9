package notify

import (
	"fmt"
	"strings"

	"digit_bot/internal/errs"
	"digit_bot/internal/models"
)

// Format текст уведомления. Тики и промежуточные апдейты контракта не шлём.
func Format(ev models.TradingEvent) (string, bool) {
	switch p := ev.Payload.(type) {
	case models.AuthorizedPayload:
		return fmt.Sprintf("🔑 Авторизован: `%s` (%s) баланс `%s`",
			p.Account.LoginID, accountKind(p.Account.IsVirtual), f2(p.Account.Balance)), true

	case models.RunPayload:
		switch ev.Kind {
		case models.EventBotStarted:
			s := p.Settings
			return fmt.Sprintf("▶️ Старт `%s`\n%s %s, ставка `%s`, x%s\nTP `%s` / SL `%s`",
				short(p.RunID), s.Symbol, s.ContractType, f2(s.EntryValue), f2(s.MartingaleFactor),
				f2(s.ProfitTarget), f2(s.LossLimit)), true
		case models.EventBotStopped:
			return fmt.Sprintf("⏹ Стоп `%s`: %s\nСделок %d (W %d / L %d), итог `%s`",
				short(p.RunID), reason(p.Reason), p.Trades, p.Wins, p.Losses, f2(p.CumulativeProfit)), true
		}

	case models.ContractPayload:
		if ev.Kind != models.EventContractFinished {
			return "", false
		}
		c := p.Contract
		emoji := "❌"
		if c.Status == models.ContractWon {
			emoji = "✅"
		}
		return fmt.Sprintf("%s #%d %s ставка `%s` профит `%s`",
			emoji, c.ID, c.ContractType, f2(c.Stake), f2(c.Profit)), true

	case models.ErrorPayload:
		if errs.Kind(p.Kind).Warning() {
			return "⚠️ " + p.Message, true
		}
		msg := "❗️ " + p.Kind
		if p.Code != "" {
			msg += " (" + p.Code + ")"
		}
		return msg + ": " + p.Message, true

	case models.AccountChangedPayload:
		return fmt.Sprintf("🔁 Счёт: `%s` → `%s`", orDash(p.Previous), p.Current), true
	}
	return "", false
}

func f2(v float64) string { return fmt.Sprintf("%.2f", v) }

func accountKind(virtual bool) string {
	if virtual {
		return "demo"
	}
	return "real"
}

func short(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func reason(r string) string {
	if r == "" {
		return "-"
	}
	return r
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
