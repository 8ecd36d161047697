package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"iaa/internal/config"
	"iaa/internal/notifier"
	logx "iaa/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// ChatID receives notifications. Zero means every owner gets a direct message.
	ChatID int64
	Owners []int64
}

// FromConfig converts the profile section.
func FromConfig(tc config.TelegramConfig) (Config, error) {
	pt, err := config.ParseDurationOrDefault("telegram.poll_timeout", tc.PollTimeout, 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Token:       strings.TrimSpace(tc.Token),
		PollTimeout: pt,
		ChatID:      tc.ChatID,
		Owners:      append([]int64(nil), tc.OwnerUserIDs...),
	}, nil
}

// sender is the subset of *tele.Bot used for outgoing messages.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Bot struct {
	cfg  Config
	log  logx.Logger
	cmds *Commands

	bot *tele.Bot
	out sender

	mu      sync.Mutex
	running bool
}

func New(cfg Config, cmds *Commands, log logx.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
		OnError: func(err error, c tele.Context) {
			log.Warn("telegram handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Bot{cfg: cfg, log: log.With(logx.String("comp", "telegram")), cmds: cmds, bot: b, out: b}, nil
}

// Run polls for commands until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return errors.New("telegram bot already running")
	}
	b.running = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		return b.onText(ctx, c)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.log.Info("polling started")
		b.bot.Start() // blocks until Stop
	}()

	<-ctx.Done()
	go b.bot.Stop()

	// Long polls can hold getUpdates open; do not block shutdown on it.
	t := time.NewTimer(2 * time.Second)
	defer t.Stop()
	select {
	case <-done:
		b.log.Info("polling stopped")
	case <-t.C:
		b.log.Warn("telegram stop grace elapsed; continuing shutdown")
	}
	return ctx.Err()
}

func (b *Bot) onText(ctx context.Context, c tele.Context) error {
	m := c.Message()
	if m == nil || m.Sender == nil || b.cmds == nil {
		return nil
	}
	reply, err := b.cmds.Handle(ctx, Request{
		FromID:       m.Sender.ID,
		FromUsername: m.Sender.Username,
		Text:         m.Text,
	})
	if err != nil || reply == "" {
		return nil
	}
	return c.Send(reply)
}

func (b *Bot) Name() string { return "telegram" }

// Send implements notifier.Sink.
func (b *Bot) Send(ctx context.Context, n notifier.Notification) error {
	text := formatNotification(n)
	targets := b.targets()
	if len(targets) == 0 {
		return errors.New("telegram: no chat configured")
	}
	var errs []error
	for _, id := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := b.out.Send(&tele.Chat{ID: id}, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bot) targets() []int64 {
	if b.cfg.ChatID != 0 {
		return []int64{b.cfg.ChatID}
	}
	return b.cfg.Owners
}

func formatNotification(n notifier.Notification) string {
	prefix := ""
	switch n.Level {
	case notifier.LevelError:
		prefix = "[ERROR] "
	case notifier.LevelWarn:
		prefix = "[WARN] "
	}
	if n.Title == "" {
		return prefix + n.Text
	}
	return prefix + n.Title + "\n" + n.Text
}
