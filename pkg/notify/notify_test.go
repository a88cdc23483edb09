package notify

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func TestNewWithoutCredentialsIsNop(t *testing.T) {
	n, err := New("", 42, nil)
	require.NoError(t, err)
	assert.IsType(t, Nop{}, n)
	assert.NoError(t, n.Notify(t.Context(), Message{TransferID: "tr_1"}))

	n, err = New("token", 0, nil)
	require.NoError(t, err)
	assert.IsType(t, Nop{}, n)
}

func TestMessageText(t *testing.T) {
	text := Message{
		TransferID: "tr_1",
		Outcome:    "succeeded",
		Status:     "completed",
		Amount:     "100 USDC",
		TxHash:     "0xabc",
		TxURL:      "https://sepolia.basescan.org/tx/0xabc",
	}.Text()

	assert.Contains(t, text, "tr_1: SUCCEEDED (completed)")
	assert.Contains(t, text, "Amount: 100 USDC")
	assert.Contains(t, text, "Tx: 0xabc")
	assert.NotContains(t, text, "Error")

	text = Message{TransferID: "tr_2", Outcome: "failed", Status: "FAILED", Err: "reverted"}.Text()
	assert.Equal(t, "TrustBridge transfer tr_2: FAILED\nError: reverted", text)
}

func TestTelegramNotify(t *testing.T) {
	bot := &fakeBot{}
	n := newTelegram(bot, -100123, nil)

	require.NoError(t, n.Notify(t.Context(), Message{TransferID: "tr_1", Outcome: "succeeded"}))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(-100123), bot.sent[0].ChatID)
	assert.Contains(t, bot.sent[0].Text, "tr_1")

	bot.err = errors.New("forbidden")
	assert.Error(t, n.Notify(t.Context(), Message{TransferID: "tr_2"}))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, n.Notify(ctx, Message{}), context.Canceled)
}
