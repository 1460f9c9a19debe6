// Package telegram implements the delivery adapter for Telegram.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "reaperd/pkg/logx"
)

type Config struct {
	Token string
	// DefaultChatID receives messages whose destination is empty or not a
	// numeric chat ID.
	DefaultChatID int64
	Timeout       time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	// Delivery-only: no poller, no update handling.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: false,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) Name() string { return "telegram" }

func (a *Adapter) Send(ctx context.Context, destination, text string) error {
	_ = ctx // telebot carries its own HTTP timeouts

	chatID := a.cfg.DefaultChatID
	if id, err := strconv.ParseInt(strings.TrimSpace(destination), 10, 64); err == nil && id != 0 {
		chatID = id
	}
	if chatID == 0 {
		return errors.New("no chat id and no default configured")
	}

	_, err := a.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return err
	}
	a.log.Debug("message delivered", logx.Int64("chat_id", chatID))
	return nil
}
