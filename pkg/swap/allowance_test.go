package swap

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"trustbridge/pkg/chain"
)

var (
	tokenIn  = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	tokenOut = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	router   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	payee    = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func TestEnsureAllowanceSufficient(t *testing.T) {
	for _, current := range []int64{1_000_000, 5_000_000} {
		reader := &mockReader{}
		signer := &mockSigner{}
		reader.On("Allowance", mock.Anything, tokenIn, owner, router).Return(big.NewInt(current), nil)

		m := NewAllowanceManager(reader, signer, nil)
		approval, err := m.EnsureAllowance(t.Context(), tokenIn, owner, router, big.NewInt(1_000_000))
		require.NoError(t, err)
		assert.Nil(t, approval.ApprovalTxHash)
		signer.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestEnsureAllowanceApprovesExactAmount(t *testing.T) {
	reader := &mockReader{}
	signer := &mockSigner{}
	hash := common.HexToHash("0xa1")
	reader.On("Allowance", mock.Anything, tokenIn, owner, router).Return(big.NewInt(999_999), nil)
	signer.On("Approve", mock.Anything, tokenIn, router, big.NewInt(1_000_000)).Return(hash, nil).Once()

	m := NewAllowanceManager(reader, signer, nil)
	approval, err := m.EnsureAllowance(t.Context(), tokenIn, owner, router, big.NewInt(1_000_000))
	require.NoError(t, err)
	require.NotNil(t, approval.ApprovalTxHash)
	assert.Equal(t, hash, *approval.ApprovalTxHash)
	signer.AssertExpectations(t)
}

func TestEnsureAllowanceErrors(t *testing.T) {
	t.Run("user rejected", func(t *testing.T) {
		reader := &mockReader{}
		signer := &mockSigner{}
		reader.On("Allowance", mock.Anything, tokenIn, owner, router).Return(big.NewInt(0), nil)
		signer.On("Approve", mock.Anything, tokenIn, router, mock.Anything).Return(common.Hash{}, chain.ErrUserRejected).Once()

		_, err := NewAllowanceManager(reader, signer, nil).EnsureAllowance(t.Context(), tokenIn, owner, router, big.NewInt(1))
		assert.ErrorIs(t, err, chain.ErrUserRejected)
		signer.AssertNumberOfCalls(t, "Approve", 1)
	})

	t.Run("read failure", func(t *testing.T) {
		reader := &mockReader{}
		reader.On("Allowance", mock.Anything, tokenIn, owner, router).Return(nil, chain.ErrChainUnavailable)

		_, err := NewAllowanceManager(reader, &mockSigner{}, nil).EnsureAllowance(t.Context(), tokenIn, owner, router, big.NewInt(1))
		assert.ErrorIs(t, err, chain.ErrChainUnavailable)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		_, err := NewAllowanceManager(&mockReader{}, &mockSigner{}, nil).EnsureAllowance(t.Context(), tokenIn, owner, router, big.NewInt(0))
		assert.Error(t, err)
	})
}
