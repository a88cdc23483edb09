package types

import "github.com/shopspring/decimal"

// SendRequest represents a user's send command
type SendRequest struct {
	Amount            decimal.Decimal
	SenderCurrency    string
	RecipientCurrency string
	PaymentMethod     PaymentMethod
}

// Recipient holds the payout details collected by the wizard
type Recipient struct {
	Name          string
	Bank          string
	Account       string
	WalletAddress string
}
