package parser

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustbridge/pkg/types"
)

func TestParseSendCommand(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		amount   string
		from, to string
		method   types.PaymentMethod
	}{
		{"plain", "100 USDC to IDR", "100", "USDC", "IDR", types.PaymentWallet},
		{"send prefix", "send 1.5 usdc to php", "1.5", "USDC", "PHP", types.PaymentWallet},
		{"extra spaces", "  send   25   USDC   TO   rupiah ", "25", "USDC", "IDR", types.PaymentWallet},
		{"via card", "50 USD to IDR via card", "50", "USD", "IDR", types.PaymentMastercard},
		{"with wallet", "50 USDC to EUR with wallet", "50", "USDC", "EUR", types.PaymentWallet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseSendCommand(tt.input)
			require.NoError(t, err)
			assert.True(t, req.Amount.Equal(decimal.RequireFromString(tt.amount)))
			assert.Equal(t, tt.from, req.SenderCurrency)
			assert.Equal(t, tt.to, req.RecipientCurrency)
			assert.Equal(t, tt.method, req.PaymentMethod)
		})
	}
}

func TestParseSendCommandErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"USDC to IDR",
		"100 USDC",
		"-5 USDC to IDR",
		"0 USDC to IDR",
		"100 USDC to USDC",
		"100 USDC to IDR via paypal",
	} {
		_, err := ParseSendCommand(input)
		assert.ErrorIs(t, err, ErrInvalidInput, input)
	}
}

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("1,250.50")
	require.NoError(t, err)
	assert.True(t, a.Equal(decimal.RequireFromString("1250.5")))

	_, err = ParseAmount("abc")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = ParseAmount("0")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
