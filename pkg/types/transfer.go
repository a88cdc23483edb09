package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus is the backend lifecycle state of a transfer
type TransferStatus string

const (
	StatusPending    TransferStatus = "pending"
	StatusProcessing TransferStatus = "processing"
	StatusPaid       TransferStatus = "paid"
	StatusCompleted  TransferStatus = "completed"
	StatusFailed     TransferStatus = "failed"
	StatusCancelled  TransferStatus = "cancelled"
)

// Normalize lower-cases and trims a status reported by the backend
func (s TransferStatus) Normalize() TransferStatus {
	return TransferStatus(strings.ToLower(strings.TrimSpace(string(s))))
}

// IsSuccess reports whether the transfer settled successfully
func (s TransferStatus) IsSuccess() bool {
	switch s.Normalize() {
	case StatusCompleted, StatusPaid:
		return true
	}
	return false
}

// IsFailure reports whether the transfer ended without paying out
func (s TransferStatus) IsFailure() bool {
	switch s.Normalize() {
	case StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can occur.
// Unknown statuses are treated as non-terminal.
func (s TransferStatus) IsTerminal() bool {
	return s.IsSuccess() || s.IsFailure()
}

// PaymentMethod is the funding rail of a transfer
type PaymentMethod string

const (
	PaymentWallet     PaymentMethod = "WALLET"
	PaymentMastercard PaymentMethod = "MASTERCARD"
)

// ParsePaymentMethod maps user input ("wallet", "card", ...) to a rail
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wallet", "onchain", "on-chain":
		return PaymentWallet, true
	case "card", "mastercard":
		return PaymentMastercard, true
	}
	return "", false
}

// QuoteParty is one side of a transfer quote
type QuoteParty struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
	Token    string          `json:"token"`
}

// QuoteFee is the fee part of a transfer quote
type QuoteFee struct {
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

// TransferQuote is the off-chain quote snapshot returned by the backend
type TransferQuote struct {
	Sender       QuoteParty      `json:"sender"`
	Recipient    QuoteParty      `json:"recipient"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
	Fee          QuoteFee        `json:"fee"`
	Total        decimal.Decimal `json:"total"`
	Timestamp    time.Time       `json:"timestamp"`
}

// QuoteRequest is the body of POST /api/exchange/quote
type QuoteRequest struct {
	SenderCurrency    string          `json:"senderCurrency"`
	RecipientCurrency string          `json:"recipientCurrency"`
	Amount            decimal.Decimal `json:"amount"`
}

// CardDetails carries card-rail funding data
type CardDetails struct {
	Number string `json:"number"`
	CVC    string `json:"cvc"`
	Expiry string `json:"expiry"`
}

// TransferRequest is the body of POST /api/transfer/initiate
type TransferRequest struct {
	WhatsappNumber         string          `json:"whatsappNumber"`
	PaymentMethod          PaymentMethod   `json:"paymentMethod"`
	SenderCurrency         string          `json:"senderCurrency"`
	SenderAmount           decimal.Decimal `json:"senderAmount"`
	RecipientName          string          `json:"recipientName"`
	RecipientCurrency      string          `json:"recipientCurrency"`
	RecipientBank          string          `json:"recipientBank"`
	RecipientAccount       string          `json:"recipientAccount"`
	RecipientWalletAddress string          `json:"recipientWalletAddress,omitempty"`
	CardDetails            *CardDetails    `json:"cardDetails,omitempty"`
}

// WalletSubmitRequest registers a client-signed swap against a new transfer record
type WalletSubmitRequest struct {
	TransferRequest
	TxHash         string `json:"txHash"`
	ApprovalTxHash string `json:"approvalTxHash,omitempty"`
	TokenIn        string `json:"tokenIn"`
	TokenOut       string `json:"tokenOut"`
	AmountIn       string `json:"amountIn"`
	MinAmountOut   string `json:"minAmountOut"`
}

// TransferInitiation is returned when a transfer record is created
type TransferInitiation struct {
	TransferID        string          `json:"transferId"`
	Status            TransferStatus  `json:"status"`
	SenderAmount      decimal.Decimal `json:"senderAmount"`
	SenderCurrency    string          `json:"senderCurrency"`
	RecipientAmount   decimal.Decimal `json:"recipientAmount"`
	RecipientCurrency string          `json:"recipientCurrency"`
	ExchangeRate      decimal.Decimal `json:"exchangeRate"`
	Fee               decimal.Decimal `json:"fee"`
	Total             decimal.Decimal `json:"total"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// TransferRecord is the server-side transfer as seen by the client.
// The status endpoint fills a subset of the fields.
type TransferRecord struct {
	ID                      string          `json:"id"`
	UserID                  int64           `json:"userId,omitempty"`
	WhatsappNumber          string          `json:"whatsappNumber,omitempty"`
	Status                  TransferStatus  `json:"status"`
	PaymentMethod           PaymentMethod   `json:"paymentMethod,omitempty"`
	SenderCurrency          string          `json:"senderCurrency"`
	SenderAmount            decimal.Decimal `json:"senderAmount"`
	RecipientName           string          `json:"recipientName,omitempty"`
	RecipientCurrency       string          `json:"recipientCurrency"`
	RecipientAmount         decimal.Decimal `json:"recipientAmount"`
	RecipientExpectedAmount decimal.Decimal `json:"recipientExpectedAmount"`
	RecipientBank           string          `json:"recipientBank,omitempty"`
	RecipientAccount        string          `json:"recipientAccount,omitempty"`
	RecipientWalletAddress  string          `json:"recipientWalletAddress,omitempty"`
	ExchangeRate            decimal.Decimal `json:"exchangeRate"`
	FeePercentage           decimal.Decimal `json:"feePercentage"`
	FeeAmount               decimal.Decimal `json:"feeAmount"`
	TotalAmount             decimal.Decimal `json:"totalAmount"`
	TxHash                  string          `json:"txHash,omitempty"`
	BlockchainTxURL         string          `json:"blockchainTxUrl,omitempty"`
	CreatedAt               time.Time       `json:"createdAt"`
	UpdatedAt               time.Time       `json:"updatedAt"`
	CompletedAt             *time.Time      `json:"completedAt,omitempty"`
}

// PayoutAmount returns what the recipient gets, whichever field the endpoint filled
func (r *TransferRecord) PayoutAmount() decimal.Decimal {
	if !r.RecipientExpectedAmount.IsZero() {
		return r.RecipientExpectedAmount
	}
	return r.RecipientAmount
}

// TransferHistory is one page of GET /api/transfer/history
type TransferHistory struct {
	Transfers []TransferRecord `json:"transfers"`
	Count     int              `json:"count"`
	Limit     int              `json:"limit"`
	Offset    int              `json:"offset"`
}
