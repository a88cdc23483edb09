package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"trustbridge/pkg/chain"
	"trustbridge/pkg/parser"
	"trustbridge/pkg/quote"
	"trustbridge/pkg/types"
)

var quoteInteractive bool

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <currency> to <currency> [via wallet|card]",
	Short: "Price a transfer without sending it",
	Long: `Fetch a transfer quote. For the wallet rail the on-chain swap estimate is
fetched alongside the backend quote and compared with it.

With --interactive, each line read from stdin is a new amount or command;
only the last line typed within the debounce window is priced.

Examples:
  trustbridge quote 100 USDC to IDR
  trustbridge quote 250 USD to PHP via card
  trustbridge quote -i`,
	RunE: runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().BoolVarP(&quoteInteractive, "interactive", "i", false, "Read amounts from stdin and re-quote as you type")
}

func quoteRequest(req *types.SendRequest) quote.Request {
	return quote.Request{
		SenderCurrency:    req.SenderCurrency,
		RecipientCurrency: req.RecipientCurrency,
		Amount:            req.Amount,
		Rail:              req.PaymentMethod,
	}
}

func runQuote(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	engine, err := a.quoteEngine(cmd.Context())
	if err != nil {
		return err
	}

	if quoteInteractive {
		return interactiveQuote(cmd, a, engine)
	}

	req, err := parser.ParseSendCommand(strings.Join(args, " "))
	if err != nil {
		return err
	}

	s := startSpinner("Fetching quote...", !a.jsonOut)
	res, err := engine.GetQuote(cmd.Context(), quoteRequest(req))
	s.stop()
	if err != nil {
		return err
	}

	if a.jsonOut {
		return printJSON(quoteView(res))
	}
	displayQuote(res)
	return nil
}

// interactiveQuote prices the last line typed. A bare number keeps the previous currencies.
func interactiveQuote(cmd *cobra.Command, a *app, engine *quote.Engine) error {
	ctx := cmd.Context()

	var (
		mu       sync.Mutex
		priced   *quote.Request
		signal   = make(chan struct{}, 1)
		previous *types.SendRequest
	)

	d := quote.NewDebouncer(ctx, engine, a.cfg.QuoteDebounce, func(req quote.Request, res *quote.Result, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("quote failed:"), chain.Describe(err))
		} else if a.jsonOut {
			_ = printJSON(quoteView(res))
		} else {
			displayQuote(res)
		}
		mu.Lock()
		priced = &req
		mu.Unlock()
		select {
		case signal <- struct{}{}:
		default:
		}
	})
	defer d.Stop()

	if !a.jsonOut {
		fmt.Println(hintStyle.Render("Type '100 USDC to IDR' or just an amount. Ctrl+D to finish."))
	}

	var pending *quote.Request
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		req, err := parseQuoteLine(line, previous)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", color.RedString(err.Error()))
			continue
		}

		previous = req
		qr := quoteRequest(req)
		pending = &qr
		d.Submit(qr)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if pending == nil {
		return nil
	}

	// wait for the final value to be priced
	for {
		mu.Lock()
		done := priced != nil && sameRequest(*priced, *pending)
		mu.Unlock()
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-signal:
		}
	}
}

func parseQuoteLine(line string, previous *types.SendRequest) (*types.SendRequest, error) {
	if amount, err := parser.ParseAmount(line); err == nil {
		if previous == nil {
			return nil, fmt.Errorf("%w: start with a full command such as '100 USDC to IDR'", parser.ErrInvalidInput)
		}
		next := *previous
		next.Amount = amount
		return &next, parser.ValidateSendRequest(&next)
	}
	return parser.ParseSendCommand(line)
}

func sameRequest(a, b quote.Request) bool {
	return a.Amount.Equal(b.Amount) &&
		a.SenderCurrency == b.SenderCurrency &&
		a.RecipientCurrency == b.RecipientCurrency &&
		a.Rail == b.Rail
}

type swapView struct {
	TokenIn      string `json:"token_in"`
	TokenOut     string `json:"token_out"`
	AmountIn     string `json:"amount_in"`
	EstimatedOut string `json:"estimated_out"`
	Fee          string `json:"fee"`
	NetOut       string `json:"net_out"`
	MinAmountOut string `json:"min_amount_out"`
	Divergence   string `json:"divergence,omitempty"`
}

type quoteResultView struct {
	Rail      types.PaymentMethod  `json:"rail"`
	Quote     *types.TransferQuote `json:"quote"`
	Swap      *swapView            `json:"swap,omitempty"`
	SwapError string               `json:"swap_error,omitempty"`
	FetchedAt string               `json:"fetched_at"`
}

func quoteView(res *quote.Result) quoteResultView {
	v := quoteResultView{
		Rail:      res.Request.Rail,
		Quote:     res.Quote,
		FetchedAt: res.FetchedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if res.SwapErr != nil {
		v.SwapError = chain.Describe(res.SwapErr)
	}
	if res.Swap != nil && res.TokenIn != nil && res.TokenOut != nil {
		v.Swap = &swapView{
			TokenIn:      res.TokenIn.Symbol,
			TokenOut:     res.TokenOut.Symbol,
			AmountIn:     chain.FormatUnits(res.AmountIn, res.TokenIn.Decimals),
			EstimatedOut: chain.FormatUnits(res.Swap.EstimatedOut, res.TokenOut.Decimals),
			Fee:          chain.FormatUnits(res.Swap.Fee, res.TokenOut.Decimals),
			NetOut:       chain.FormatUnits(res.Swap.NetOut, res.TokenOut.Decimals),
			MinAmountOut: chain.FormatUnits(res.Swap.MinAmountOut, res.TokenOut.Decimals),
		}
		if res.Divergence != nil {
			v.Swap.Divergence = res.Divergence.String()
		}
	}
	return v
}

func displayQuote(res *quote.Result) {
	q := res.Quote

	section("TRANSFER QUOTE", 60)
	fmt.Printf("\n  You send:          %s\n", color.YellowString(money(q.Sender.Amount, q.Sender.Currency)))
	fmt.Printf("  Recipient gets:    %s\n", color.GreenString(money(q.Recipient.Amount, q.Recipient.Currency)))
	fmt.Printf("  Exchange rate:     1 %s = %s %s\n", q.Sender.Currency, q.ExchangeRate.String(), q.Recipient.Currency)
	fmt.Printf("  Fee:               %s (%s%%)\n", money(q.Fee.Amount, q.Sender.Currency), q.Fee.Percentage.String())
	fmt.Printf("  Total charged:     %s\n", money(q.Total, q.Sender.Currency))
	fmt.Printf("  Rail:              %s\n", res.Request.Rail)

	if res.Request.Rail == types.PaymentWallet {
		fmt.Println()
		switch {
		case res.SwapErr != nil:
			color.Red("  On-chain estimate unavailable: %s", chain.Describe(res.SwapErr))
		case res.Swap != nil:
			v := quoteView(res).Swap
			fmt.Printf("  Swap:              %s %s -> ~%s %s\n", v.AmountIn, v.TokenIn, v.NetOut, v.TokenOut)
			fmt.Printf("  Contract fee:      %s %s\n", v.Fee, v.TokenOut)
			fmt.Printf("  Minimum received:  %s %s\n", v.MinAmountOut, v.TokenOut)
			if res.Divergence != nil {
				fmt.Printf("  Quote divergence:  %s%%\n", res.Divergence.Shift(2).StringFixed(2))
			}
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
}
