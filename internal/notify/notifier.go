package notify

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
	Start(ctx context.Context, c Controller) error
	Stop()
}

// Telegram уведомления в один чат + команды /status /run /stop /buy из него же.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	log    *zap.Logger
}

func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
		log:    log.Named("telegram"),
	}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	m := tgbot.NewMessage(t.chatID, msg)
	m.ParseMode = tgbot.ModeMarkdown
	if _, err := t.bot.Send(m); err != nil {
		t.log.Warn("telegram send failed", zap.Error(err))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Start long-polling команд из нашего чата.
func (t *Telegram) Start(ctx context.Context, c Controller) error {
	if t == nil || t.bot == nil {
		return nil
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				if upd.Message == nil || upd.Message.Chat == nil ||
					upd.Message.Chat.ID != t.chatID || !upd.Message.IsCommand() {
					continue
				}
				cmd := upd.Message.Command()
				go func() {
					if reply := HandleCommand(ctx, c, cmd); reply != "" {
						t.Send(reply)
					}
				}()
			}
		}
	}()
	return nil
}

func (t *Telegram) Stop() {
	if t == nil || t.bot == nil {
		return
	}
	t.bot.StopReceivingUpdates()
}

// Log без телеграма: уведомления идут в лог.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log { return &Log{log: log.Named("notify")} }

func (l *Log) Send(msg string)                         { l.log.Info(msg) }
func (l *Log) Sendf(format string, args ...any)        { l.log.Info(fmt.Sprintf(format, args...)) }
func (l *Log) Start(context.Context, Controller) error { return nil }
func (l *Log) Stop()                                   {}
