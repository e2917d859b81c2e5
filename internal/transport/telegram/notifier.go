package telegram

import (
	"context"
	"fmt"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/and161185/remind-keeper/internal/delivery"
)

// Notifier delivers reminder messages through the Bot API.
type Notifier struct {
	api API
}

var _ delivery.Notifier = (*Notifier)(nil)

// NewNotifier wraps an API client.
func NewNotifier(api API) *Notifier { return &Notifier{api: api} }

// Open returns a delivery.OpenFunc that authorises against the Bot API with token.
func Open(token string) delivery.OpenFunc {
	return func(context.Context) (delivery.Notifier, error) {
		api, err := tg.NewBotAPI(token)
		if err != nil {
			return nil, fmt.Errorf("telegram: authorise: %w", err)
		}
		return NewNotifier(api), nil
	}
}

// Deliver sends text to the chat with id target.
func (n *Notifier) Deliver(ctx context.Context, target int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.api.Send(tg.NewMessage(target, text)); err != nil {
		return fmt.Errorf("telegram: send to %d: %w", target, err)
	}
	return nil
}

// Close is a no-op; the Bot API client holds no persistent connection.
func (n *Notifier) Close() error { return nil }
