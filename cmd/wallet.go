package cmd

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trustbridge/pkg/chain"
	"trustbridge/pkg/parser"
	"trustbridge/pkg/types"
)

var walletCmd = &cobra.Command{
	Use:   "wallet [address]",
	Short: "Show wallet balances",
	Long: `Show the native and token balances of your signer account, or of any address.

Examples:
  trustbridge wallet
  trustbridge wallet 0x1234...abcd --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWallet,
}

func init() {
	rootCmd.AddCommand(walletCmd)
}

type walletView struct {
	Address     common.Address        `json:"address"`
	Network     *types.BlockchainInfo `json:"network,omitempty"`
	Native      string                `json:"native"`
	NativeError string                `json:"native_error,omitempty"`
	Balances    []types.TokenBalance  `json:"balances"`
}

type nativeBalanceReader interface {
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
}

type tokenBalanceReader interface {
	Balances(ctx context.Context, owner common.Address) ([]types.TokenBalance, error)
}

type networkInfoSource interface {
	BlockchainInfo(ctx context.Context) (*types.BlockchainInfo, error)
}

// loadWallet reads everything concurrently. Only a failed token registry load is fatal.
func loadWallet(ctx context.Context, owner common.Address, native nativeBalanceReader, tokens tokenBalanceReader, network networkInfoSource, logger *zap.Logger) (walletView, error) {
	view := walletView{Address: owner}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bal, err := native.NativeBalance(gctx, owner)
		if err != nil {
			logger.Warn("native balance read failed", zap.Error(err))
			view.NativeError = chain.Describe(err)
			return nil
		}
		view.Native = chain.FormatUnits(bal, 18)
		return nil
	})
	g.Go(func() error {
		balances, err := tokens.Balances(gctx, owner)
		view.Balances = balances
		return err
	})
	g.Go(func() error {
		// network info is decoration only
		if info, err := network.BlockchainInfo(gctx); err == nil {
			view.Network = info
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return walletView{}, err
	}
	return view, nil
}

func runWallet(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()

	var owner common.Address
	if len(args) == 1 {
		if err := parser.ValidateAddress(args[0]); err != nil {
			return err
		}
		owner = common.HexToAddress(args[0])
	} else {
		w, err := a.wallet(ctx)
		if err != nil {
			return err
		}
		if owner, err = w.Account(); err != nil {
			return err
		}
	}

	reader, err := a.reader(ctx)
	if err != nil {
		return err
	}
	registry := a.tokenRegistry(ctx)

	s := startSpinner("Reading balances...", !a.jsonOut)
	view, err := loadWallet(ctx, owner, reader, registry, a.api, a.logger)
	s.stop()
	if err != nil {
		return err
	}

	if a.jsonOut {
		return printJSON(view)
	}

	section("WALLET", 70)
	fmt.Printf("\n  Address:  %s\n", color.CyanString(owner.Hex()))
	nativeSymbol := "ETH"
	if view.Network != nil {
		fmt.Printf("  Network:  %s (chain %d)\n", view.Network.Network, view.Network.ChainID)
		if view.Network.NativeCurrency.Symbol != "" {
			nativeSymbol = view.Network.NativeCurrency.Symbol
		}
	}
	if url := a.cfg.AddressURL(owner.Hex()); url != "" {
		fmt.Printf("  Explorer: %s\n", hintStyle.Render(url))
	}
	if view.NativeError != "" {
		fmt.Printf("\n  %-8s  %s\n", color.YellowString(nativeSymbol), color.RedString("unavailable"))
	} else {
		fmt.Printf("\n  %-8s  %s\n", color.YellowString(nativeSymbol), view.Native)
	}
	for _, b := range view.Balances {
		if b.Err != nil {
			fmt.Printf("  %-8s  %s\n", color.YellowString(b.Token.Symbol), color.RedString("unavailable"))
			continue
		}
		fmt.Printf("  %-8s  %s\n", color.YellowString(b.Token.Symbol), b.Formatted)
	}
	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
	return nil
}
