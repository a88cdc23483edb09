package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trustbridge/pkg/chain"
	"trustbridge/pkg/notify"
	"trustbridge/pkg/parser"
	"trustbridge/pkg/poller"
	"trustbridge/pkg/quote"
	"trustbridge/pkg/swap"
	"trustbridge/pkg/transfer"
	"trustbridge/pkg/types"
)

var (
	sendName       string
	sendBank       string
	sendAccount    string
	sendWalletAddr string
	sendPhone      string
	sendKey        string
	sendYes        bool
	sendNoWatch    bool
)

var sendCmd = &cobra.Command{
	Use:   "send <amount> <currency> to <currency> [via wallet|card]",
	Short: "Send money to a bank account",
	Long: `Send a transfer in five steps: amount, recipient, confirm, processing
and tracking. Missing details are asked for interactively.

The wallet rail swaps tokens on-chain from your signer account and registers
the swap with the backend. If registration fails after the swap went out,
re-run with the printed --key to register it without swapping again.

Examples:
  trustbridge send 100 USDC to IDR
  trustbridge send 50 USD to PHP via card
  trustbridge send 100 USDC to IDR --name "Siti Rahma" --bank BCA --account 1234567890 --yes
  trustbridge send 100 USDC to IDR --key 6f1c...`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendName, "name", "", "Recipient full name")
	sendCmd.Flags().StringVar(&sendBank, "bank", "", "Recipient bank")
	sendCmd.Flags().StringVar(&sendAccount, "account", "", "Recipient bank account number")
	sendCmd.Flags().StringVar(&sendWalletAddr, "wallet-address", "", "Address receiving the swapped tokens (default: your signer account)")
	sendCmd.Flags().StringVar(&sendPhone, "phone", "", "WhatsApp number for notifications (default: your login number)")
	sendCmd.Flags().StringVar(&sendKey, "key", "", "Idempotency key of an earlier wallet transfer to resume")
	sendCmd.Flags().BoolVarP(&sendYes, "yes", "y", false, "Skip confirmation prompts")
	sendCmd.Flags().BoolVar(&sendNoWatch, "no-watch", false, "Do not wait for the transfer to settle")
}

// wizard holds the state of one send run
type wizard struct {
	a        *app
	req      *types.SendRequest
	engine   *quote.Engine
	quote    *quote.Result
	transfer types.TransferRequest
	svc      *transfer.Service
	journal  *swap.Journal
	key      string
	txHash   *common.Hash
}

func runSend(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.requireLogin(); err != nil {
		return err
	}
	ctx := cmd.Context()

	req, err := sendRequest(args)
	if err != nil {
		return err
	}

	w := &wizard{a: a, req: req, key: sendKey}
	if w.key == "" {
		w.key = uuid.New().String()
	}
	defer func() {
		if w.journal != nil {
			_ = w.journal.Close()
		}
	}()

	banner("TRUSTBRIDGE TRANSFER")

	step(1, "amount")
	if err := w.fetchQuote(ctx); err != nil {
		return err
	}

	if err := w.setup(ctx); err != nil {
		return err
	}

	step(2, "recipient")
	if err := w.collectRecipient(); err != nil {
		return err
	}

	initiation, err := w.confirmAndSubmit(ctx)
	if err != nil || initiation == nil {
		return err
	}

	printSuccess(fmt.Sprintf("Transfer %s created (%s).", initiation.TransferID, initiation.Status))
	if sendNoWatch {
		color.Cyan("Track it with: trustbridge status %s --watch\n", initiation.TransferID)
		return nil
	}

	step(5, "tracking")
	res := watchTransfer(cmd, a, initiation.TransferID, w.txHash)
	w.notify(ctx, initiation.TransferID, res)
	return nil
}

// sendRequest parses the command line, or asks for the amount when it is empty
func sendRequest(args []string) (*types.SendRequest, error) {
	if len(args) > 0 {
		return parser.ParseSendCommand(strings.Join(args, " "))
	}

	var amount, from, to, method string
	from, to, method = "USDC", "IDR", string(types.PaymentWallet)
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Amount").
				Value(&amount).
				Validate(func(s string) error {
					_, err := parser.ParseAmount(s)
					return err
				}),
			huh.NewInput().Title("You send (currency)").Value(&from),
			huh.NewInput().Title("Recipient gets (currency)").Value(&to),
			huh.NewSelect[string]().
				Title("Pay with").
				Options(
					huh.NewOption("Wallet (on-chain swap)", string(types.PaymentWallet)),
					huh.NewOption("Mastercard", string(types.PaymentMastercard)),
				).
				Value(&method),
		),
	).Run()
	if err != nil {
		return nil, err
	}

	parsed, err := parser.ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	req := &types.SendRequest{
		Amount:            parsed,
		SenderCurrency:    parser.NormalizeCurrency(from),
		RecipientCurrency: parser.NormalizeCurrency(to),
		PaymentMethod:     types.PaymentMethod(method),
	}
	return req, parser.ValidateSendRequest(req)
}

func (w *wizard) fetchQuote(ctx context.Context) error {
	engine, err := w.a.quoteEngine(ctx)
	if err != nil {
		return err
	}
	w.engine = engine

	s := startSpinner("Fetching quote...", true)
	res, err := engine.GetQuote(ctx, quoteRequest(w.req))
	s.stop()
	if err != nil {
		return err
	}
	w.quote = res
	displayQuote(res)

	if w.req.PaymentMethod == types.PaymentWallet {
		if err := res.SwapReady(); err != nil {
			color.Yellow("\nThe on-chain leg cannot be priced right now; the transfer will be refused until it can.")
		}
	}

	w.svc = transfer.NewService(w.a.api, engine, nil, nil, w.serviceConfig(), w.a.logger.Named("transfer"))
	return nil
}

func (w *wizard) serviceConfig() transfer.Config {
	return transfer.Config{
		QuoteValidity: w.a.cfg.QuoteValidity,
		MaxDivergence: w.a.cfg.MaxQuoteDivergence,
	}
}

// setup wires the wallet rail: signer, swap executor and journal
func (w *wizard) setup(ctx context.Context) error {
	if w.req.PaymentMethod != types.PaymentWallet {
		return nil
	}
	if !w.a.cfg.WalletEnabled() {
		return fmt.Errorf("%w: set private_key and swap_contract, or pay by card with 'via card'", chain.ErrWalletNotConnected)
	}

	wallet, err := w.a.wallet(ctx, chain.WithConfirm(w.confirmSignature))
	if err != nil {
		return err
	}
	account, err := wallet.Account()
	if err != nil {
		return err
	}
	if sendWalletAddr == "" {
		sendWalletAddr = account.Hex()
	}

	reader, err := w.a.reader(ctx)
	if err != nil {
		return err
	}

	w.journal, err = swap.OpenJournal(w.a.cfg.JournalDir, w.a.logger.Named("journal"))
	if err != nil {
		return err
	}

	executor := swap.NewExecutor(reader, wallet, w.a.swapContract(), w.journal, w.a.logger.Named("swap"))
	executor.Subscribe(w.showPhase)

	w.svc = transfer.NewService(w.a.api, w.engine, executor, w.journal, w.serviceConfig(), w.a.logger.Named("transfer"))

	fmt.Printf("\n  Signer:            %s\n", color.CyanString(account.Hex()))
	return nil
}

func (w *wizard) collectRecipient() error {
	phone := sendPhone
	if phone == "" {
		if user := w.a.session.User(); user != nil {
			phone = user.WhatsappNumber
		}
	}

	fields := []huh.Field{}
	if sendName == "" {
		fields = append(fields, huh.NewInput().Title("Recipient name").Value(&sendName).
			Validate(required("recipient name")))
	}
	if sendBank == "" {
		fields = append(fields, huh.NewInput().Title("Recipient bank").Value(&sendBank).
			Validate(required("recipient bank")))
	}
	if sendAccount == "" {
		fields = append(fields, huh.NewInput().Title("Account number").Value(&sendAccount).
			Validate(required("account number")))
	}
	if phone == "" {
		fields = append(fields, huh.NewInput().Title("WhatsApp number").Value(&phone).
			Validate(parser.ValidatePhone))
	}

	var card types.CardDetails
	if w.req.PaymentMethod == types.PaymentMastercard {
		fields = append(fields,
			huh.NewInput().Title("Card number").Value(&card.Number),
			huh.NewInput().Title("Expiry (MM/YY)").Value(&card.Expiry),
			huh.NewInput().Title("CVC").EchoMode(huh.EchoModePassword).Value(&card.CVC),
		)
	}

	if len(fields) > 0 {
		if sendYes {
			return fmt.Errorf("%w: recipient details are incomplete; pass --name, --bank and --account", parser.ErrInvalidInput)
		}
		if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
			return err
		}
	}

	w.transfer = types.TransferRequest{
		WhatsappNumber:         phone,
		PaymentMethod:          w.req.PaymentMethod,
		SenderCurrency:         w.req.SenderCurrency,
		SenderAmount:           w.req.Amount,
		RecipientName:          strings.TrimSpace(sendName),
		RecipientCurrency:      w.req.RecipientCurrency,
		RecipientBank:          strings.TrimSpace(sendBank),
		RecipientAccount:       strings.ReplaceAll(strings.TrimSpace(sendAccount), " ", ""),
		RecipientWalletAddress: sendWalletAddr,
	}
	if w.req.PaymentMethod == types.PaymentMastercard {
		card.Number = strings.ReplaceAll(card.Number, " ", "")
		w.transfer.CardDetails = &card
	}

	// input errors are caught here and never reach the backend
	return parser.ValidateTransferRequest(w.transfer, time.Now())
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

// confirmAndSubmit loops between the confirm and processing steps until the
// transfer is created or the user gives up. A nil initiation means cancelled.
func (w *wizard) confirmAndSubmit(ctx context.Context) (*types.TransferInitiation, error) {
	for {
		step(3, "confirm")
		w.summary()

		if !sendYes {
			ok, err := confirm("Send this transfer?")
			if err != nil {
				return nil, err
			}
			if !ok {
				fmt.Println("\nTransfer cancelled.")
				return nil, nil
			}
		}

		step(4, "processing")
		initiation, err := w.submit(ctx)
		if err == nil {
			return initiation, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if errors.Is(err, swap.ErrIdempotencyMismatch) {
			color.Yellow("--key %s belongs to another transfer. Repeat its exact amount, currencies and wallet address.\n", w.key)
			return nil, err
		}
		printError(err)
		if errors.Is(err, transfer.ErrRegistrationFailed) {
			color.Yellow("Your swap was sent. Resume with: trustbridge send %s %s to %s --key %s\n",
				w.req.Amount, w.req.SenderCurrency, w.req.RecipientCurrency, w.key)
		}
		if sendYes {
			return nil, err
		}
	}
}

func (w *wizard) submit(ctx context.Context) (*types.TransferInitiation, error) {
	if w.req.PaymentMethod == types.PaymentMastercard {
		s := startSpinner("Submitting card payment...", true)
		defer s.stop()
		return w.svc.SubmitCard(ctx, w.transfer)
	}

	sub, err := w.svc.SubmitWallet(ctx, transfer.WalletTransfer{
		Request:        w.transfer,
		Quote:          w.quote,
		IdempotencyKey: w.key,
	})
	if sub != nil && sub.Quote != nil {
		if sub.QuoteRefreshed {
			color.Yellow("  Quote refreshed before swapping.")
			displayQuote(sub.Quote)
		}
		w.quote = sub.Quote
	}
	if sub != nil && sub.Swap != nil {
		h := sub.Swap.SwapTxHash
		w.txHash = &h
	}
	if err != nil {
		return nil, err
	}

	if sub.AlreadyRegistered {
		color.Yellow("  This swap was already registered as transfer %s.", sub.TransferID)
		return &types.TransferInitiation{TransferID: sub.TransferID, Status: types.StatusProcessing}, nil
	}
	return sub.Initiation, nil
}

func (w *wizard) summary() {
	t := w.transfer
	fmt.Printf("\n  Send:        %s via %s\n", color.YellowString(money(t.SenderAmount, t.SenderCurrency)), t.PaymentMethod)
	if w.quote != nil && w.quote.Quote != nil {
		q := w.quote.Quote
		fmt.Printf("  Receives:    %s\n", color.GreenString(money(q.Recipient.Amount, q.Recipient.Currency)))
		fmt.Printf("  Total:       %s\n", money(q.Total, q.Sender.Currency))
	}
	fmt.Printf("  Recipient:   %s, %s %s\n", t.RecipientName, t.RecipientBank, t.RecipientAccount)
	if t.PaymentMethod == types.PaymentWallet {
		fmt.Printf("  Payout to:   %s\n", t.RecipientWalletAddress)
	}
	if t.CardDetails != nil && len(t.CardDetails.Number) >= 4 {
		fmt.Printf("  Card:        **** %s\n", t.CardDetails.Number[len(t.CardDetails.Number)-4:])
	}
}

func (w *wizard) confirmSignature(ctx context.Context, req chain.TxRequest) (bool, error) {
	if sendYes {
		return true, nil
	}
	return confirm(fmt.Sprintf("Sign %s transaction? %s", req.Kind, req.Summary))
}

func (w *wizard) showPhase(st swap.State) {
	switch st.Phase {
	case swap.PhaseApproving:
		if st.ApprovalTxHash != nil {
			fmt.Printf("  Approval sent:     %s\n", color.HiBlackString(st.ApprovalTxHash.Hex()))
		} else {
			fmt.Println("  Checking allowance...")
		}
	case swap.PhaseSwapping:
		fmt.Println("  Swapping...")
	case swap.PhaseCompleted:
		if st.SwapTxHash != nil {
			fmt.Printf("  Swap sent:         %s\n", color.HiBlackString(st.SwapTxHash.Hex()))
			if url := w.a.cfg.TxURL(st.SwapTxHash.Hex()); url != "" {
				fmt.Printf("                     %s\n", hintStyle.Render(url))
			}
		}
	case swap.PhaseError:
		color.Red("  Swap failed: %s", st.Message)
	}
}

func (w *wizard) notify(ctx context.Context, id string, res poller.Result) {
	msg := notify.Message{
		TransferID: id,
		Outcome:    string(res.Outcome),
		Amount:     money(w.transfer.SenderAmount, w.transfer.SenderCurrency),
		Recipient:  w.transfer.RecipientName,
		TxHash:     res.TxHash,
		TxURL:      w.a.cfg.TxURL(res.TxHash),
	}
	if res.Record != nil {
		msg.Status = string(res.Record.Status)
	}
	if res.Err != nil {
		msg.Err = res.Err.Error()
	}
	// still notify after Ctrl+C stopped the watch
	if err := w.a.notifier().Notify(context.WithoutCancel(ctx), msg); err != nil {
		w.a.logger.Warn("notification failed", zap.Error(err))
	}
}

func confirm(title string) (bool, error) {
	ok := false
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).Run()
	return ok, err
}
