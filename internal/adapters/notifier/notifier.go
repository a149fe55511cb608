// Package notifier sends operator messages through github.com/nikoksr/notify.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nikoksr/notify"
	"github.com/nikoksr/notify/service/telegram"

	"github.com/fpvleague/lapboard/internal/domain/model"
	"github.com/fpvleague/lapboard/pkg/logger"
)

// Notifier fans a message out to every configured service. Without services it only logs.
type Notifier struct {
	n        *notify.Notify
	services int
	logger   logger.Logger
}

// Option applies a configuration option to the Notifier.
type Option func(*Notifier) error

// WithServices registers arbitrary notify services.
func WithServices(services ...notify.Notifier) Option {
	return func(n *Notifier) error {
		n.n.UseServices(services...)
		n.services += len(services)
		return nil
	}
}

// WithTelegram registers a Telegram bot sending to chatIDs. An empty token is ignored.
func WithTelegram(token string, chatIDs ...int64) Option {
	return func(n *Notifier) error {
		if strings.TrimSpace(token) == "" || len(chatIDs) == 0 {
			return nil
		}
		tg, err := telegram.New(token)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSetup, err)
		}
		tg.AddReceivers(chatIDs...)
		n.n.UseServices(tg)
		n.services++
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Notifier) error {
		if l != nil {
			n.logger = l
		}
		return nil
	}
}

// New builds a Notifier.
func New(opts ...Option) (*Notifier, error) {
	n := &Notifier{n: notify.New()}
	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	if n.logger == nil {
		n.logger = logger.Get().Named("notifier")
	}
	return n, nil
}

// Enabled reports whether at least one service is registered.
func (n *Notifier) Enabled() bool {
	return n.services > 0
}

// Send delivers subject and message to every service.
func (n *Notifier) Send(ctx context.Context, subject, message string) error {
	if !n.Enabled() {
		n.logger.Debug(ctx, "notification skipped, no services", logger.String("subject", subject))
		return nil
	}
	if err := n.n.Send(ctx, subject, message); err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	return nil
}

// TracksUpdated renders the notification sent after an admin replaces the track selection.
func TracksUpdated(entries []model.TrackConfig, at time.Time) model.Notification {
	var b strings.Builder
	if len(entries) == 0 {
		b.WriteString("No active tracks.")
	}
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		title := e.Title
		if title == "" {
			title = e.Ref().Identity()
		}
		state := "active"
		if !e.Active {
			state = "inactive"
		}
		fmt.Fprintf(&b, "%s (%s, %d lap", title, e.Ref().Identity(), e.Laps)
		if e.Laps != 1 {
			b.WriteString("s")
		}
		fmt.Fprintf(&b, ", %s)", state)
	}
	return model.Notification{
		Subject:   "Leaderboard tracks updated",
		Message:   b.String(),
		CreatedAt: at,
	}
}
