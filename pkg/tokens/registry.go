package tokens

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trustbridge/pkg/chain"
	"trustbridge/pkg/types"
)

// ErrUnknownToken is returned when neither the registry nor an alias knows the symbol
var ErrUnknownToken = errors.New("unknown token")

const readConcurrency = 8

// Source lists the backend's token registry
type Source interface {
	Tokens(ctx context.Context) ([]types.Token, error)
}

// Registry resolves symbols and currencies to on-chain tokens
type Registry struct {
	source  Source
	reader  chain.Reader
	aliases map[string]string
	logger  *zap.Logger

	mu       sync.Mutex
	loaded   bool
	bySymbol map[string]*types.Token
}

// NewRegistry creates a registry. aliases maps currency codes to token symbols, e.g. IDR -> IDRX.
func NewRegistry(source Source, reader chain.Reader, aliases map[string]string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	normalized := make(map[string]string, len(aliases))
	for currency, symbol := range aliases {
		normalized[strings.ToUpper(currency)] = strings.ToUpper(symbol)
	}
	return &Registry{
		source:   source,
		reader:   reader,
		aliases:  normalized,
		logger:   logger,
		bySymbol: make(map[string]*types.Token),
	}
}

// Load fetches the registry once; later calls are no-ops
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

func (r *Registry) loadLocked(ctx context.Context) error {
	if r.loaded {
		return nil
	}

	list, err := r.source.Tokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to load token registry: %w", err)
	}

	for i := range list {
		tok := list[i]
		if !tok.IsActive {
			continue
		}
		tok.Symbol = strings.ToUpper(tok.Symbol)
		r.bySymbol[tok.Symbol] = &tok
	}
	r.loaded = true

	r.logger.Debug("token registry loaded", zap.Int("tokens", len(r.bySymbol)))
	return nil
}

// All returns the active tokens sorted by symbol
func (r *Registry) All(ctx context.Context) ([]types.Token, error) {
	list, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for i := range list {
		g.Go(func() error {
			tok, err := r.withDecimals(gctx, list[i])
			if err != nil {
				return err
			}
			list[i] = tok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return list, nil
}

// Lookup returns the token registered under symbol
func (r *Registry) Lookup(ctx context.Context, symbol string) (types.Token, error) {
	r.mu.Lock()
	if err := r.loadLocked(ctx); err != nil {
		r.mu.Unlock()
		return types.Token{}, err
	}
	tok, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	var found types.Token
	if ok {
		found = *tok
	}
	r.mu.Unlock()

	if !ok {
		return types.Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return r.withDecimals(ctx, found)
}

// snapshot copies the active tokens sorted by symbol without touching the chain
func (r *Registry) snapshot(ctx context.Context) ([]types.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return nil, err
	}

	out := make([]types.Token, 0, len(r.bySymbol))
	for _, tok := range r.bySymbol {
		out = append(out, *tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// ForCurrency resolves a currency code through the alias map, then as a symbol
func (r *Registry) ForCurrency(ctx context.Context, currency string) (types.Token, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if symbol, ok := r.aliases[currency]; ok {
		tok, err := r.Lookup(ctx, symbol)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, ErrUnknownToken) {
			return types.Token{}, err
		}
	}
	tok, err := r.Lookup(ctx, currency)
	if err != nil {
		return types.Token{}, fmt.Errorf("no on-chain token for currency %s: %w", currency, err)
	}
	return tok, nil
}

// withDecimals reads decimals from chain when the registry omitted them and caches the result
func (r *Registry) withDecimals(ctx context.Context, tok types.Token) (types.Token, error) {
	if tok.Decimals != 0 || r.reader == nil {
		return tok, nil
	}
	decimals, err := r.reader.Decimals(ctx, tok.ContractAddress)
	if err != nil {
		return tok, fmt.Errorf("failed to read decimals of %s: %w", tok.Symbol, err)
	}
	tok.Decimals = decimals

	r.mu.Lock()
	if cached, ok := r.bySymbol[tok.Symbol]; ok {
		cached.Decimals = decimals
	}
	r.mu.Unlock()
	return tok, nil
}

// Balances reads every active token's balance for owner concurrently.
// A failed read yields a zero balance with Err set; it does not fail the whole refresh.
func (r *Registry) Balances(ctx context.Context, owner common.Address) ([]types.TokenBalance, error) {
	if r.reader == nil {
		return nil, chain.ErrChainUnavailable
	}

	list, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]types.TokenBalance, len(list))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)

	for i, tok := range list {
		g.Go(func() error {
			tok, err := r.withDecimals(gctx, tok)
			if err != nil {
				r.logger.Warn("decimals read failed", zap.String("token", tok.Symbol), zap.Error(err))
				out[i] = types.TokenBalance{Token: tok, Balance: big.NewInt(0), Formatted: "0", Err: err}
				return nil
			}

			bal, err := r.reader.Balance(gctx, tok.ContractAddress, owner)
			if err != nil {
				r.logger.Warn("balance read failed", zap.String("token", tok.Symbol), zap.Error(err))
				out[i] = types.TokenBalance{Token: tok, Balance: big.NewInt(0), Formatted: "0", Err: err}
				return nil
			}
			out[i] = types.TokenBalance{Token: tok, Balance: bal, Formatted: chain.FormatUnits(bal, tok.Decimals)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
