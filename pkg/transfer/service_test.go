package transfer

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"trustbridge/pkg/parser"
	"trustbridge/pkg/quote"
	"trustbridge/pkg/swap"
	"trustbridge/pkg/types"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) InitiateTransfer(ctx context.Context, req types.TransferRequest) (*types.TransferInitiation, error) {
	args := m.Called(ctx, req)
	v, _ := args.Get(0).(*types.TransferInitiation)
	return v, args.Error(1)
}

func (m *mockBackend) WalletSubmit(ctx context.Context, req types.WalletSubmitRequest) (*types.TransferInitiation, error) {
	args := m.Called(ctx, req)
	v, _ := args.Get(0).(*types.TransferInitiation)
	return v, args.Error(1)
}

func (m *mockBackend) History(ctx context.Context, limit, offset int) (*types.TransferHistory, error) {
	args := m.Called(ctx, limit, offset)
	v, _ := args.Get(0).(*types.TransferHistory)
	return v, args.Error(1)
}

func (m *mockBackend) Invoice(ctx context.Context, id string) ([]byte, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).([]byte)
	return v, args.Error(1)
}

type mockQuoter struct {
	mock.Mock
}

func (m *mockQuoter) GetQuote(ctx context.Context, req quote.Request) (*quote.Result, error) {
	args := m.Called(ctx, req)
	v, _ := args.Get(0).(*quote.Result)
	return v, args.Error(1)
}

type mockSwapper struct {
	mock.Mock
}

func (m *mockSwapper) Swap(ctx context.Context, p swap.Params) (*swap.Result, error) {
	args := m.Called(ctx, p)
	v, _ := args.Get(0).(*swap.Result)
	return v, args.Error(1)
}

var (
	usdc    = types.Token{Symbol: "USDC", ContractAddress: common.HexToAddress("0x01"), Decimals: 6}
	idrx    = types.Token{Symbol: "IDRX", ContractAddress: common.HexToAddress("0x02"), Decimals: 2}
	payee   = "0x00000000000000000000000000000000000000cc"
	fixedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
)

func walletRequest() types.TransferRequest {
	return types.TransferRequest{
		WhatsappNumber:         "081234567890",
		SenderCurrency:         "USDC",
		SenderAmount:           decimal.NewFromInt(100),
		RecipientName:          "Siti",
		RecipientCurrency:      "IDR",
		RecipientBank:          "BCA",
		RecipientAccount:       "12345678",
		RecipientWalletAddress: payee,
	}
}

func walletQuote(fetchedAt time.Time) *quote.Result {
	tin, tout := usdc, idrx
	d := decimal.Zero
	return &quote.Result{
		Request: quote.Request{SenderCurrency: "USDC", RecipientCurrency: "IDR", Amount: decimal.NewFromInt(100), Rail: types.PaymentWallet},
		Quote: &types.TransferQuote{
			Sender:    types.QuoteParty{Currency: "USDC", Amount: decimal.NewFromInt(100)},
			Recipient: types.QuoteParty{Currency: "IDR", Amount: decimal.NewFromInt(1_620_000)},
		},
		Swap: &quote.SwapQuote{
			EstimatedOut: big.NewInt(164_000_000),
			Fee:          big.NewInt(2_000_000),
			NetOut:       big.NewInt(162_000_000),
			MinAmountOut: big.NewInt(158_760_000),
		},
		AmountIn:   big.NewInt(100_000_000),
		TokenIn:    &tin,
		TokenOut:   &tout,
		FetchedAt:  fetchedAt,
		Divergence: &d,
	}
}

func newService(backend Backend, quoter Quoter, swapper Swapper, journal *swap.Journal, cfg Config) *Service {
	s := NewService(backend, quoter, swapper, journal, cfg, nil)
	s.now = func() time.Time { return fixedAt }
	return s
}

func TestSubmitCard(t *testing.T) {
	backend := &mockBackend{}
	req := walletRequest()
	req.RecipientWalletAddress = ""
	req.CardDetails = &types.CardDetails{Number: "4242424242424242", CVC: "123", Expiry: "12/30"}

	backend.On("InitiateTransfer", mock.Anything, mock.MatchedBy(func(r types.TransferRequest) bool {
		return r.PaymentMethod == types.PaymentMastercard && r.WhatsappNumber == "81234567890"
	})).Return(&types.TransferInitiation{TransferID: "tr_card", Status: types.StatusPending}, nil).Once()

	s := newService(backend, nil, nil, nil, Config{})
	initiation, err := s.SubmitCard(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, "tr_card", initiation.TransferID)

	bad := req
	bad.CardDetails = &types.CardDetails{Number: "1234", CVC: "1", Expiry: "x"}
	_, err = s.SubmitCard(t.Context(), bad)
	assert.ErrorIs(t, err, parser.ErrInvalidInput)
	backend.AssertNumberOfCalls(t, "InitiateTransfer", 1)
}

func TestSubmitWalletUsesFreshQuote(t *testing.T) {
	backend := &mockBackend{}
	quoter := &mockQuoter{}
	swapper := &mockSwapper{}
	approval := common.HexToHash("0xa1")
	swapTx := common.HexToHash("0xb2")

	swapper.On("Swap", mock.Anything, mock.MatchedBy(func(p swap.Params) bool {
		return p.TokenIn == usdc.ContractAddress &&
			p.TokenOut == idrx.ContractAddress &&
			p.AmountIn.Int64() == 100_000_000 &&
			p.MinAmountOut.Int64() == 158_760_000 &&
			p.Recipient == common.HexToAddress(payee) &&
			p.IdempotencyKey == "key-1" &&
			p.Fingerprint == Fingerprint(walletRequest())
	})).Return(&swap.Result{ApprovalTxHash: &approval, SwapTxHash: swapTx}, nil).Once()

	backend.On("WalletSubmit", mock.Anything, mock.MatchedBy(func(r types.WalletSubmitRequest) bool {
		return r.TxHash == swapTx.Hex() && r.ApprovalTxHash == approval.Hex() &&
			r.PaymentMethod == types.PaymentWallet && r.MinAmountOut == "158760000"
	})).Return(&types.TransferInitiation{TransferID: "tr_1", Status: types.StatusProcessing}, nil).Once()

	s := newService(backend, quoter, swapper, nil, Config{})
	sub, err := s.SubmitWallet(t.Context(), WalletTransfer{
		Request:        walletRequest(),
		Quote:          walletQuote(fixedAt.Add(-10 * time.Second)),
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "tr_1", sub.TransferID)
	assert.False(t, sub.QuoteRefreshed)
	quoter.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything)
	backend.AssertExpectations(t)
	swapper.AssertExpectations(t)
}

func TestSubmitWalletRefetchesStaleQuote(t *testing.T) {
	backend := &mockBackend{}
	quoter := &mockQuoter{}
	swapper := &mockSwapper{}

	quoter.On("GetQuote", mock.Anything, mock.MatchedBy(func(r quote.Request) bool {
		return r.Rail == types.PaymentWallet && r.Amount.Equal(decimal.NewFromInt(100))
	})).Return(walletQuote(fixedAt), nil).Once()
	swapper.On("Swap", mock.Anything, mock.Anything).Return(&swap.Result{SwapTxHash: common.HexToHash("0xb2")}, nil).Once()
	backend.On("WalletSubmit", mock.Anything, mock.Anything).Return(&types.TransferInitiation{TransferID: "tr_2"}, nil).Once()

	s := newService(backend, quoter, swapper, nil, Config{QuoteValidity: time.Minute})
	sub, err := s.SubmitWallet(t.Context(), WalletTransfer{
		Request: walletRequest(),
		Quote:   walletQuote(fixedAt.Add(-2 * time.Minute)),
	})
	require.NoError(t, err)
	assert.True(t, sub.QuoteRefreshed)
	assert.NotEmpty(t, sub.IdempotencyKey)
	quoter.AssertExpectations(t)
}

func TestSubmitWalletRefusesUnusableQuote(t *testing.T) {
	t.Run("no estimate", func(t *testing.T) {
		q := walletQuote(fixedAt)
		q.Swap = nil
		q.SwapErr = errors.New("no liquidity")
		swapper := &mockSwapper{}

		_, err := newService(&mockBackend{}, &mockQuoter{}, swapper, nil, Config{}).
			SubmitWallet(t.Context(), WalletTransfer{Request: walletRequest(), Quote: q})
		assert.ErrorIs(t, err, quote.ErrNoSwapEstimate)
		swapper.AssertNotCalled(t, "Swap", mock.Anything, mock.Anything)
	})

	t.Run("divergence", func(t *testing.T) {
		q := walletQuote(fixedAt)
		d := decimal.RequireFromString("0.1")
		q.Divergence = &d
		swapper := &mockSwapper{}

		_, err := newService(&mockBackend{}, &mockQuoter{}, swapper, nil, Config{MaxDivergence: decimal.RequireFromString("0.05")}).
			SubmitWallet(t.Context(), WalletTransfer{Request: walletRequest(), Quote: q})
		assert.ErrorIs(t, err, quote.ErrQuoteDivergence)
		swapper.AssertNotCalled(t, "Swap", mock.Anything, mock.Anything)
	})

	t.Run("missing wallet address", func(t *testing.T) {
		req := walletRequest()
		req.RecipientWalletAddress = ""
		_, err := newService(&mockBackend{}, &mockQuoter{}, &mockSwapper{}, nil, Config{}).
			SubmitWallet(t.Context(), WalletTransfer{Request: req, Quote: walletQuote(fixedAt)})
		assert.ErrorIs(t, err, parser.ErrInvalidInput)
	})
}

func TestSubmitWalletRetriesRegistrationWithoutSecondSwap(t *testing.T) {
	journal, err := swap.OpenJournal(t.TempDir(), nil)
	require.NoError(t, err)
	defer journal.Close()

	// a previous run swapped but the backend never acknowledged it
	attempt, err := journal.Prepare(swap.Params{
		TokenIn:        usdc.ContractAddress,
		TokenOut:       idrx.ContractAddress,
		AmountIn:       big.NewInt(100_000_000),
		Recipient:      common.HexToAddress(payee),
		MinAmountOut:   big.NewInt(158_760_000),
		IdempotencyKey: "key-9",
		Fingerprint:    Fingerprint(walletRequest()),
	})
	require.NoError(t, err)
	require.NoError(t, journal.MarkSubmitted(attempt, common.HexToHash("0xb2").Hex()))

	backend := &mockBackend{}
	swapper := &mockSwapper{}
	backend.On("WalletSubmit", mock.Anything, mock.Anything).Return(nil, errors.New("502 bad gateway")).Once()
	backend.On("WalletSubmit", mock.Anything, mock.MatchedBy(func(r types.WalletSubmitRequest) bool {
		return r.TxHash == common.HexToHash("0xb2").Hex() && r.AmountIn == "100000000"
	})).Return(&types.TransferInitiation{TransferID: "tr_9"}, nil).Once()

	s := newService(backend, &mockQuoter{}, swapper, journal, Config{})
	wt := WalletTransfer{Request: walletRequest(), Quote: walletQuote(fixedAt), IdempotencyKey: "key-9"}

	sub, err := s.SubmitWallet(t.Context(), wt)
	assert.ErrorIs(t, err, ErrRegistrationFailed)
	require.NotNil(t, sub)
	assert.Equal(t, "key-9", sub.IdempotencyKey)

	sub, err = s.SubmitWallet(t.Context(), wt)
	require.NoError(t, err)
	assert.Equal(t, "tr_9", sub.TransferID)
	assert.True(t, sub.Swap.Replayed)

	// once registered, a third call is answered from the journal
	sub, err = s.SubmitWallet(t.Context(), wt)
	require.NoError(t, err)
	assert.True(t, sub.AlreadyRegistered)
	assert.Equal(t, "tr_9", sub.TransferID)

	swapper.AssertNotCalled(t, "Swap", mock.Anything, mock.Anything)
	backend.AssertNumberOfCalls(t, "WalletSubmit", 2)
}

func TestSubmitWalletRefusesKeyReusedForDifferentTransfer(t *testing.T) {
	journal, err := swap.OpenJournal(t.TempDir(), nil)
	require.NoError(t, err)
	defer journal.Close()

	attempt, err := journal.Prepare(swap.Params{
		TokenIn:        usdc.ContractAddress,
		TokenOut:       idrx.ContractAddress,
		AmountIn:       big.NewInt(100_000_000),
		Recipient:      common.HexToAddress(payee),
		MinAmountOut:   big.NewInt(158_760_000),
		IdempotencyKey: "key-x",
		Fingerprint:    Fingerprint(walletRequest()),
	})
	require.NoError(t, err)
	require.NoError(t, journal.MarkSubmitted(attempt, common.HexToHash("0xb2").Hex()))

	tests := []struct {
		name   string
		mutate func(*types.TransferRequest)
	}{
		{"amount", func(r *types.TransferRequest) { r.SenderAmount = decimal.NewFromInt(500) }},
		{"recipient currency", func(r *types.TransferRequest) { r.RecipientCurrency = "PHP" }},
		{"payout address", func(r *types.TransferRequest) { r.RecipientWalletAddress = "0x00000000000000000000000000000000000000dd" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockBackend{}
			swapper := &mockSwapper{}
			req := walletRequest()
			tt.mutate(&req)

			s := newService(backend, &mockQuoter{}, swapper, journal, Config{})
			sub, err := s.SubmitWallet(t.Context(), WalletTransfer{Request: req, IdempotencyKey: "key-x"})
			assert.ErrorIs(t, err, swap.ErrIdempotencyMismatch)
			assert.Nil(t, sub)

			backend.AssertNotCalled(t, "WalletSubmit", mock.Anything, mock.Anything)
			swapper.AssertNotCalled(t, "Swap", mock.Anything, mock.Anything)
		})
	}

	// once registered, a mismatched retry must not hand back the old transfer id
	require.NoError(t, journal.MarkReported("key-x", "tr_x"))
	req := walletRequest()
	req.SenderAmount = decimal.NewFromInt(500)
	s := newService(&mockBackend{}, &mockQuoter{}, &mockSwapper{}, journal, Config{})
	_, err = s.SubmitWallet(t.Context(), WalletTransfer{Request: req, IdempotencyKey: "key-x"})
	assert.ErrorIs(t, err, swap.ErrIdempotencyMismatch)
}

func TestFingerprintNormalizesInput(t *testing.T) {
	a := walletRequest()
	b := walletRequest()
	b.SenderCurrency = "usdc"
	b.SenderAmount = decimal.RequireFromString("100.00")
	b.RecipientWalletAddress = "0x00000000000000000000000000000000000000CC"
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	b.SenderAmount = decimal.NewFromInt(101)
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestHistoryFilter(t *testing.T) {
	backend := &mockBackend{}
	backend.On("History", mock.Anything, 20, 0).Return(&types.TransferHistory{
		Transfers: []types.TransferRecord{
			{ID: "tr_1", Status: "completed", RecipientName: "Siti Rahma"},
			{ID: "tr_2", Status: "FAILED", RecipientName: "Budi"},
			{ID: "tr_3", Status: "completed", RecipientName: "Budi", TxHash: "0xabc"},
		},
		Count: 3, Limit: 20,
	}, nil)

	s := newService(backend, nil, nil, nil, Config{})

	all, err := s.History(t.Context(), Filter{Limit: 20, Status: "all"})
	require.NoError(t, err)
	assert.Len(t, all.Transfers, 3)

	done, err := s.History(t.Context(), Filter{Limit: 20, Status: "Completed"})
	require.NoError(t, err)
	assert.Len(t, done.Transfers, 2)

	budi, err := s.History(t.Context(), Filter{Limit: 20, Status: "completed", Search: "budi"})
	require.NoError(t, err)
	require.Len(t, budi.Transfers, 1)
	assert.Equal(t, "tr_3", budi.Transfers[0].ID)

	byHash, err := s.History(t.Context(), Filter{Limit: 20, Search: "0xAB"})
	require.NoError(t, err)
	assert.Len(t, byHash.Transfers, 1)
}

func TestInvoice(t *testing.T) {
	backend := &mockBackend{}
	backend.On("Invoice", mock.Anything, "tr_1").Return([]byte("%PDF-1.4"), nil)

	var buf bytes.Buffer
	n, err := newService(backend, nil, nil, nil, Config{}).Invoice(t.Context(), "tr_1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, "%PDF-1.4", buf.String())

	_, err = newService(backend, nil, nil, nil, Config{}).Invoice(t.Context(), " ", &buf)
	assert.ErrorIs(t, err, parser.ErrInvalidInput)
}
