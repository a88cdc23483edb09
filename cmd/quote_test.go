package cmd

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustbridge/pkg/parser"
	"trustbridge/pkg/types"
)

func TestParseQuoteLine(t *testing.T) {
	_, err := parseQuoteLine("250", nil)
	assert.ErrorIs(t, err, parser.ErrInvalidInput)

	first, err := parseQuoteLine("100 usdc to idr via card", nil)
	require.NoError(t, err)
	assert.Equal(t, types.PaymentMastercard, first.PaymentMethod)

	next, err := parseQuoteLine("1,250.5", first)
	require.NoError(t, err)
	assert.True(t, next.Amount.Equal(decimal.RequireFromString("1250.5")))
	assert.Equal(t, "USDC", next.SenderCurrency)
	assert.Equal(t, "IDR", next.RecipientCurrency)
	assert.True(t, first.Amount.Equal(decimal.NewFromInt(100)), "previous request must not change")

	_, err = parseQuoteLine("0", first)
	assert.Error(t, err)
}

func TestSameRequest(t *testing.T) {
	a := quoteRequest(&types.SendRequest{Amount: decimal.RequireFromString("10.0"), SenderCurrency: "USDC", RecipientCurrency: "IDR", PaymentMethod: types.PaymentWallet})
	b := a
	b.Amount = decimal.NewFromInt(10)
	assert.True(t, sameRequest(a, b))

	b.Rail = types.PaymentMastercard
	assert.False(t, sameRequest(a, b))
}
