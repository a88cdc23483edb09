package swap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"trustbridge/pkg/chain"
)

// Approval is the outcome of EnsureAllowance
type Approval struct {
	// ApprovalTxHash is nil when the existing allowance already covered the amount
	ApprovalTxHash *common.Hash
	// Allowance is the value read before deciding
	Allowance *big.Int
}

// AllowanceManager makes sure a spender may move the required token amount
type AllowanceManager struct {
	reader chain.Reader
	wallet chain.Signer
	logger *zap.Logger
}

// NewAllowanceManager creates an allowance manager
func NewAllowanceManager(reader chain.Reader, wallet chain.Signer, logger *zap.Logger) *AllowanceManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllowanceManager{reader: reader, wallet: wallet, logger: logger}
}

// EnsureAllowance approves exactly required when the current allowance is short.
// It returns as soon as the node accepts the approval; it does not wait for mining.
func (m *AllowanceManager) EnsureAllowance(ctx context.Context, token, owner, spender common.Address, required *big.Int) (*Approval, error) {
	if required == nil || required.Sign() <= 0 {
		return nil, fmt.Errorf("required allowance must be positive")
	}

	current, err := m.reader.Allowance(ctx, token, owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowance: %w", err)
	}

	if current.Cmp(required) >= 0 {
		m.logger.Debug("allowance sufficient, skipping approval",
			zap.String("token", token.Hex()),
			zap.String("allowance", current.String()),
			zap.String("required", required.String()))
		return &Approval{Allowance: current}, nil
	}

	if m.wallet == nil {
		return nil, chain.ErrWalletNotConnected
	}

	hash, err := m.wallet.Approve(ctx, token, spender, new(big.Int).Set(required))
	if err != nil {
		return nil, fmt.Errorf("approval failed: %w", err)
	}

	m.logger.Info("approval submitted",
		zap.String("token", token.Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("amount", required.String()),
		zap.String("tx", hash.Hex()))

	return &Approval{ApprovalTxHash: &hash, Allowance: current}, nil
}
