package cmd

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trustbridge/config"
	"trustbridge/pkg/chain"
	"trustbridge/pkg/client"
	"trustbridge/pkg/notify"
	"trustbridge/pkg/quote"
	"trustbridge/pkg/session"
	"trustbridge/pkg/tokens"
)

// app carries what every command needs. Chain access is dialed on first use.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	session  *session.Store
	api      *client.Client
	jsonOut  bool
	verbose  bool
	eth      *ethclient.Client
	registry *tokens.Registry
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger := config.NewLogger(level)

	store, err := session.Open(cfg.SessionPath)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		session: store,
		api:     client.New(cfg.BackendURL, cfg.RequestTimeout, store, logger.Named("api")),
		jsonOut: jsonOut,
		verbose: verbose,
	}, nil
}

func (a *app) close() {
	if a.eth != nil {
		a.eth.Close()
	}
	_ = a.logger.Sync()
}

func (a *app) requireLogin() error {
	if !a.session.IsAuthenticated() {
		return fmt.Errorf("%w: run 'trustbridge login' first", client.ErrNotAuthenticated)
	}
	return nil
}

func (a *app) ethClient(ctx context.Context) (*ethclient.Client, error) {
	if a.eth != nil {
		return a.eth, nil
	}
	eth, err := ethclient.DialContext(ctx, a.cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chain.ErrChainUnavailable, err)
	}
	a.eth = eth
	return eth, nil
}

func (a *app) swapContract() common.Address {
	return common.HexToAddress(a.cfg.SwapContract)
}

func (a *app) reader(ctx context.Context) (*chain.EVMReader, error) {
	eth, err := a.ethClient(ctx)
	if err != nil {
		return nil, err
	}
	return chain.NewEVMReader(eth, a.swapContract(), a.logger.Named("chain")), nil
}

// tokenRegistry returns the registry; without a node it still resolves symbols but cannot read decimals on-chain
func (a *app) tokenRegistry(ctx context.Context) *tokens.Registry {
	if a.registry != nil {
		return a.registry
	}

	var reader chain.Reader
	if r, err := a.reader(ctx); err == nil {
		reader = r
	} else {
		a.logger.Warn("chain reads disabled", zap.Error(err))
	}
	a.registry = tokens.NewRegistry(a.api, reader, a.cfg.TokenAliases, a.logger.Named("tokens"))
	return a.registry
}

func (a *app) wallet(ctx context.Context, opts ...chain.WalletOption) (*chain.KeyWallet, error) {
	if a.cfg.PrivateKey == "" {
		return nil, chain.ErrWalletNotConnected
	}
	eth, err := a.ethClient(ctx)
	if err != nil {
		return nil, err
	}

	opts = append([]chain.WalletOption{
		chain.WithGasLimit(a.cfg.GasLimit),
		chain.WithWalletLogger(a.logger.Named("wallet")),
	}, opts...)
	return chain.NewKeyWallet(eth, a.cfg.PrivateKey, a.cfg.ChainID, opts...)
}

// quoteEngine prices transfers; the on-chain estimate is skipped when no node or contract is configured
func (a *app) quoteEngine(ctx context.Context) (*quote.Engine, error) {
	registry := a.tokenRegistry(ctx)

	var reader chain.Reader
	if a.cfg.SwapContract != "" {
		if r, err := a.reader(ctx); err == nil {
			reader = r
		}
	}
	return quote.NewEngine(a.api, registry, reader, a.cfg.Slippage, a.logger.Named("quote"))
}

func (a *app) notifier() notify.Notifier {
	n, err := notify.New(a.cfg.Notify.TelegramToken, a.cfg.Notify.TelegramChatID, a.logger.Named("notify"))
	if err != nil {
		a.logger.Warn("notifications disabled", zap.Error(err))
		return notify.Nop{}
	}
	return n
}
