package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token is an ERC-20 entry of the token registry
type Token struct {
	Symbol          string         `json:"tokenSymbol"`
	Name            string         `json:"tokenName,omitempty"`
	ContractAddress common.Address `json:"contractAddress"`
	Decimals        uint8          `json:"decimals"`
	ChainID         int64          `json:"chainId,omitempty"`
	IsActive        bool           `json:"isActive"`
}

// NativeCurrency describes the gas token of a network
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// BlockchainInfo is returned by GET /api/blockchain/info
type BlockchainInfo struct {
	Network        string         `json:"network"`
	ChainID        int64          `json:"chainId"`
	RPCURL         string         `json:"rpcUrl"`
	ExplorerURL    string         `json:"explorerUrl"`
	NativeCurrency NativeCurrency `json:"nativeCurrency"`
}

// TokenBalance is the balance of one token held by an owner
type TokenBalance struct {
	Token     Token    `json:"token"`
	Balance   *big.Int `json:"balance"`
	Formatted string   `json:"formatted"`
	Err       error    `json:"-"`
}
