package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"trustbridge/pkg/types"
)

// ErrInvalidInput marks user-input validation failures; they are never sent to the backend
var ErrInvalidInput = errors.New("invalid input")

var (
	countryCodePattern = regexp.MustCompile(`^\+\d{1,4}$`)
	digitsPattern      = regexp.MustCompile(`^\d+$`)
	expiryPattern      = regexp.MustCompile(`^(0[1-9]|1[0-2])/(\d{2})$`)
)

// NormalizePhone strips separators and a leading trunk zero from a local number
func NormalizePhone(number string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	number = replacer.Replace(strings.TrimSpace(number))
	return strings.TrimPrefix(number, "0")
}

// ValidatePhone checks a WhatsApp number entered without the country code
func ValidatePhone(number string) error {
	n := NormalizePhone(number)
	if n == "" {
		return fmt.Errorf("%w: phone number is required", ErrInvalidInput)
	}
	if strings.HasPrefix(n, "+") {
		return fmt.Errorf("%w: enter the number without the country code", ErrInvalidInput)
	}
	if !digitsPattern.MatchString(n) || len(n) < 6 || len(n) > 14 {
		return fmt.Errorf("%w: %q is not a valid phone number", ErrInvalidInput, number)
	}
	return nil
}

// ValidateCountryCode checks a dialing prefix such as +62
func ValidateCountryCode(code string) error {
	if !countryCodePattern.MatchString(strings.TrimSpace(code)) {
		return fmt.Errorf("%w: country code must look like +62", ErrInvalidInput)
	}
	return nil
}

// ValidateCard checks card number (Luhn), CVC and expiry against now
func ValidateCard(card *types.CardDetails, now time.Time) error {
	if card == nil {
		return fmt.Errorf("%w: card details are required", ErrInvalidInput)
	}

	number := strings.ReplaceAll(strings.ReplaceAll(card.Number, " ", ""), "-", "")
	if !digitsPattern.MatchString(number) || len(number) < 13 || len(number) > 19 || !luhn(number) {
		return fmt.Errorf("%w: card number is not valid", ErrInvalidInput)
	}

	cvc := strings.TrimSpace(card.CVC)
	if !digitsPattern.MatchString(cvc) || len(cvc) < 3 || len(cvc) > 4 {
		return fmt.Errorf("%w: CVC must be 3 or 4 digits", ErrInvalidInput)
	}

	m := expiryPattern.FindStringSubmatch(strings.TrimSpace(card.Expiry))
	if m == nil {
		return fmt.Errorf("%w: expiry must be MM/YY", ErrInvalidInput)
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	// valid through the last day of the expiry month
	expires := time.Date(2000+year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	if !now.Before(expires) {
		return fmt.Errorf("%w: card has expired", ErrInvalidInput)
	}
	return nil
}

// ValidateRecipient checks the recipient step of the wizard
func ValidateRecipient(r types.Recipient, method types.PaymentMethod) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: recipient name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(r.Bank) == "" {
		return fmt.Errorf("%w: recipient bank is required", ErrInvalidInput)
	}
	account := strings.ReplaceAll(strings.TrimSpace(r.Account), " ", "")
	if account == "" {
		return fmt.Errorf("%w: recipient account is required", ErrInvalidInput)
	}
	if !digitsPattern.MatchString(account) {
		return fmt.Errorf("%w: recipient account must contain digits only", ErrInvalidInput)
	}
	if method == types.PaymentWallet {
		if err := ValidateAddress(r.WalletAddress); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAddress checks a 0x-prefixed EVM address
func ValidateAddress(addr string) error {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") || !common.IsHexAddress(addr) {
		return fmt.Errorf("%w: %q is not a valid wallet address", ErrInvalidInput, addr)
	}
	if common.HexToAddress(addr) == (common.Address{}) {
		return fmt.Errorf("%w: wallet address must not be the zero address", ErrInvalidInput)
	}
	return nil
}

// ValidateTransferRequest checks a full transfer request before it is submitted
func ValidateTransferRequest(req types.TransferRequest, now time.Time) error {
	if err := ValidatePhone(req.WhatsappNumber); err != nil {
		return err
	}
	if !req.SenderAmount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidInput)
	}
	if req.SenderCurrency == "" || req.RecipientCurrency == "" {
		return fmt.Errorf("%w: currencies are required", ErrInvalidInput)
	}

	recipient := types.Recipient{
		Name:          req.RecipientName,
		Bank:          req.RecipientBank,
		Account:       req.RecipientAccount,
		WalletAddress: req.RecipientWalletAddress,
	}
	if err := ValidateRecipient(recipient, req.PaymentMethod); err != nil {
		return err
	}

	switch req.PaymentMethod {
	case types.PaymentMastercard:
		return ValidateCard(req.CardDetails, now)
	case types.PaymentWallet:
		return nil
	default:
		return fmt.Errorf("%w: payment method must be WALLET or MASTERCARD", ErrInvalidInput)
	}
}

func luhn(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
