package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"trustbridge/pkg/types"
)

var sendPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s+([A-Z$]+)\s+TO\s+([A-Z$]+)(?:\s+(?:VIA|BY|WITH)\s+([A-Z-]+))?$`)

// ParseSendCommand parses a natural language send command
// Examples:
//   - "send 100 USDC to IDR"
//   - "50 usdc to php via card"
//   - "100 USDC TO IDR via wallet"
func ParseSendCommand(command string) (*types.SendRequest, error) {
	command = strings.Join(strings.Fields(strings.ToUpper(command)), " ")
	command = strings.TrimPrefix(command, "SEND ")

	matches := sendPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("%w: expected '<amount> <currency> to <currency> [via wallet|card]' (e.g. 'send 100 USDC to IDR')", ErrInvalidInput)
	}

	amount, err := ParseAmount(matches[1])
	if err != nil {
		return nil, err
	}

	req := &types.SendRequest{
		Amount:            amount,
		SenderCurrency:    NormalizeCurrency(matches[2]),
		RecipientCurrency: NormalizeCurrency(matches[3]),
		PaymentMethod:     types.PaymentWallet,
	}

	if matches[4] != "" {
		method, ok := types.ParsePaymentMethod(matches[4])
		if !ok {
			return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, strings.ToLower(matches[4]))
		}
		req.PaymentMethod = method
	}

	if err := ValidateSendRequest(req); err != nil {
		return nil, err
	}
	return req, nil
}

// ValidateSendRequest validates that a send request has all required fields
func ValidateSendRequest(req *types.SendRequest) error {
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidInput)
	}
	if req.SenderCurrency == "" {
		return fmt.Errorf("%w: sender currency is required", ErrInvalidInput)
	}
	if req.RecipientCurrency == "" {
		return fmt.Errorf("%w: recipient currency is required", ErrInvalidInput)
	}
	if req.SenderCurrency == req.RecipientCurrency {
		return fmt.Errorf("%w: sender and recipient currency must differ", ErrInvalidInput)
	}
	return nil
}

// ParseAmount parses a positive decimal amount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidInput)
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidInput, s)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidInput)
	}
	return amount, nil
}

// NormalizeCurrency normalizes currency codes to standard format
func NormalizeCurrency(code string) string {
	code = strings.TrimSpace(strings.ToUpper(code))

	aliases := map[string]string{
		"RP":     "IDR",
		"RUPIAH": "IDR",
		"PESO":   "PHP",
		"EURO":   "EUR",
		"US$":    "USD",
		"$":      "USD",
	}

	if normalized, exists := aliases[code]; exists {
		return normalized
	}
	return code
}
