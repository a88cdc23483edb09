package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

var (
	// ErrChainUnavailable covers transport failures and timeouts talking to the node.
	ErrChainUnavailable = errors.New("blockchain node unavailable")
	// ErrDecode is returned when a contract call returns data that cannot be decoded.
	ErrDecode = errors.New("malformed contract response")
	// ErrEstimateFailed is returned when getEstimatedOutput reverts, e.g. no liquidity for the pair.
	ErrEstimateFailed = errors.New("swap estimate failed")
	// ErrReadReverted is returned when an ERC-20 read reverts.
	ErrReadReverted = errors.New("contract read reverted")

	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrUserRejected       = errors.New("signature request rejected")
	ErrSubmissionFailed   = errors.New("transaction submission failed")
	ErrTxReverted         = errors.New("transaction reverted on-chain")
	// ErrInsufficientAllowance is returned when the allowance is still short right before a swap.
	ErrInsufficientAllowance = errors.New("insufficient token allowance")
)

// revertErrorCode is the JSON-RPC error code geth uses for execution reverts
const revertErrorCode = 3

func isRevert(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// Describe converts any error into a single message fit for the user
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWalletNotConnected):
		return "No wallet is connected. Configure a signer key (private_key) and try again."
	case errors.Is(err, ErrUserRejected):
		return "The signature request was rejected. Nothing was sent; confirm again to retry."
	case errors.Is(err, ErrTxReverted):
		return "The transaction was mined but reverted on-chain. Check your balance and allowance before retrying."
	case errors.Is(err, ErrInsufficientAllowance):
		return "The swap contract is not approved to spend this amount yet. Approve and try again."
	case errors.Is(err, ErrEstimateFailed):
		return "The swap contract could not price this pair (no liquidity or unsupported route)."
	case errors.Is(err, ErrSubmissionFailed):
		return "The network refused the transaction: " + rootCause(err)
	case errors.Is(err, ErrChainUnavailable):
		return "The blockchain node could not be reached. Try again in a moment."
	case errors.Is(err, ErrDecode), errors.Is(err, ErrReadReverted):
		return "The token contract returned an unexpected response: " + rootCause(err)
	}
	return err.Error()
}

func rootCause(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 && i+2 < len(msg) {
		return msg[i+2:]
	}
	return msg
}
