package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Message describes the end of a transfer
type Message struct {
	TransferID string
	Outcome    string
	Status     string
	Amount     string
	Recipient  string
	TxHash     string
	TxURL      string
	Err        string
}

// Text renders the message as plain text
func (m Message) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "TrustBridge transfer %s: %s", m.TransferID, strings.ToUpper(m.Outcome))
	if m.Status != "" && !strings.EqualFold(m.Status, m.Outcome) {
		fmt.Fprintf(&b, " (%s)", m.Status)
	}
	if m.Amount != "" {
		fmt.Fprintf(&b, "\nAmount: %s", m.Amount)
	}
	if m.Recipient != "" {
		fmt.Fprintf(&b, "\nRecipient: %s", m.Recipient)
	}
	if m.TxHash != "" {
		fmt.Fprintf(&b, "\nTx: %s", m.TxHash)
	}
	if m.TxURL != "" {
		fmt.Fprintf(&b, "\n%s", m.TxURL)
	}
	if m.Err != "" {
		fmt.Fprintf(&b, "\nError: %s", m.Err)
	}
	return b.String()
}

// Notifier delivers transfer outcomes
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Nop drops every message
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts outcomes to one chat
type Telegram struct {
	bot    sender
	chatID int64
	logger *zap.Logger
}

// New returns a Telegram notifier when token and chatID are set, Nop otherwise
func New(token string, chatID int64, logger *zap.Logger) (Notifier, error) {
	if token == "" || chatID == 0 {
		return Nop{}, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect telegram bot")
	}
	return newTelegram(bot, chatID, logger), nil
}

func newTelegram(bot sender, chatID int64, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{bot: bot, chatID: chatID, logger: logger}
}

// Notify sends msg. The bot API call is not cancellable, so ctx is only checked up front.
func (t *Telegram) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	out := tgbotapi.NewMessage(t.chatID, msg.Text())
	out.DisableWebPagePreview = true
	if _, err := t.bot.Send(out); err != nil {
		t.logger.Warn("telegram notification failed", zap.String("transfer", msg.TransferID), zap.Error(err))
		return errors.Wrap(err, "failed to send telegram message")
	}

	t.logger.Debug("telegram notification sent", zap.String("transfer", msg.TransferID))
	return nil
}
