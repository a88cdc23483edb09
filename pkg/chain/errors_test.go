package chain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type rpcError struct {
	code int
	msg  string
}

func (e rpcError) Error() string  { return e.msg }
func (e rpcError) ErrorCode() int { return e.code }

func TestIsRevert(t *testing.T) {
	assert.True(t, isRevert(rpcError{code: 3, msg: "boom"}))
	assert.True(t, isRevert(fmt.Errorf("call: %w", rpcError{code: 3, msg: "boom"})))
	assert.True(t, isRevert(fmt.Errorf("Execution reverted: no liquidity")))
	assert.False(t, isRevert(rpcError{code: -32000, msg: "header not found"}))
	assert.False(t, isRevert(nil))
}

func TestDescribe(t *testing.T) {
	assert.Empty(t, Describe(nil))
	assert.Contains(t, Describe(fmt.Errorf("approve: %w", ErrUserRejected)), "rejected")
	assert.Contains(t, Describe(ErrWalletNotConnected), "No wallet")
	assert.Contains(t, Describe(fmt.Errorf("%w: 0xabc", ErrTxReverted)), "reverted")
	assert.Equal(t, "The network refused the transaction: nonce too low",
		Describe(fmt.Errorf("%w: %w", ErrSubmissionFailed, fmt.Errorf("nonce too low"))))
	assert.Equal(t, "plain failure", Describe(fmt.Errorf("plain failure")))
}
