package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"trustbridge/pkg/poller"
	"trustbridge/pkg/types"
)

var (
	watchStatus      bool
	watchInterval    time.Duration
	watchMaxAttempts int
	statusTxHash     string
	statusDetails    bool
)

var statusCmd = &cobra.Command{
	Use:   "status <transfer-id>",
	Short: "Check the status of a transfer",
	Long: `Check the status of a transfer by its id.

With --watch the status is polled until the transfer completes, fails, or the
attempt limit is reached. With --tx the swap transaction receipt is checked too,
so a reverted swap is reported without waiting for the backend.

Examples:
  trustbridge status tr_123
  trustbridge status tr_123 --details
  trustbridge status tr_123 --watch --interval 10s --tx 0xabc...`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates until the transfer settles")
	statusCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Polling interval (default from config)")
	statusCmd.Flags().IntVar(&watchMaxAttempts, "max-attempts", 0, "Maximum polls before giving up (default from config)")
	statusCmd.Flags().StringVar(&statusTxHash, "tx", "", "Swap transaction hash to check on-chain while watching")
	statusCmd.Flags().BoolVar(&statusDetails, "details", false, "Fetch the full transfer record")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.requireLogin(); err != nil {
		return err
	}

	if watchStatus {
		var txHash *common.Hash
		if statusTxHash != "" {
			h := common.HexToHash(statusTxHash)
			txHash = &h
		}
		res := watchTransfer(cmd, a, args[0], txHash)
		if a.jsonOut {
			return printJSON(res)
		}
		return nil
	}

	s := startSpinner("Checking transfer status...", !a.jsonOut)
	var rec *types.TransferRecord
	if statusDetails {
		rec, err = a.api.TransferDetails(cmd.Context(), args[0])
	} else {
		rec, err = a.api.TransferStatus(cmd.Context(), args[0])
	}
	s.stop()
	if err != nil {
		return err
	}

	if a.jsonOut {
		return printJSON(rec)
	}
	displayStatus(rec, a.cfg.TxURL(rec.TxHash))
	return nil
}

// watchTransfer polls until a terminal status. Ctrl+C stops it.
func watchTransfer(cmd *cobra.Command, a *app, id string, txHash *common.Hash) poller.Result {
	opts := poller.Options{
		Interval:    a.cfg.PollInterval,
		MaxAttempts: a.cfg.PollMaxAttempts,
		TxHash:      txHash,
	}
	if watchInterval > 0 {
		opts.Interval = watchInterval
	}
	if watchMaxAttempts > 0 {
		opts.MaxAttempts = watchMaxAttempts
	}

	p := poller.New(a.api, nil, a.logger.Named("poller"))
	if txHash != nil {
		if eth, err := a.ethClient(cmd.Context()); err == nil {
			p = poller.New(a.api, eth, a.logger.Named("poller"))
		}
	}

	if !a.jsonOut {
		fmt.Printf("\nWatching transfer %s\n", color.CyanString(id))
		fmt.Printf("Checking every %s. Press Ctrl+C to stop.\n", opts.Interval)
	}

	s := startSpinner("Waiting for the first status...", !a.jsonOut)
	res := p.Poll(cmd.Context(), id, opts, func(u poller.Update) {
		switch {
		case u.Err != nil:
			s.update(fmt.Sprintf("Attempt %d/%d: %v", u.Attempt, opts.MaxAttempts, u.Err))
		case u.Record != nil:
			s.update(fmt.Sprintf("Attempt %d/%d: %s", u.Attempt, opts.MaxAttempts, strings.ToUpper(string(u.Record.Status))))
		}
	})
	s.stop()

	if !a.jsonOut {
		displayOutcome(res, a.cfg.TxURL(res.TxHash))
	}
	return res
}

func displayOutcome(res poller.Result, txURL string) {
	switch res.Outcome {
	case poller.OutcomeSucceeded:
		color.Green("\nTransfer completed.")
	case poller.OutcomeFailed:
		color.Red("\nTransfer failed.")
		if res.Receipt != nil {
			color.Red("The swap transaction reverted on-chain.")
		}
	case poller.OutcomeProcessing:
		color.Yellow("\nStill processing after %d checks. Check again later with 'trustbridge status'.", res.Attempts)
	case poller.OutcomeStopped:
		color.Yellow("\nStopped watching. The transfer continues in the background.")
	}
	if res.Record != nil {
		displayStatus(res.Record, txURL)
	} else if res.Err != nil {
		color.Red("Last error: %v", res.Err)
	}
}

func displayStatus(rec *types.TransferRecord, txURL string) {
	section("TRANSFER STATUS", 70)

	fmt.Printf("\n  Transfer ID:     %s\n", color.CyanString(rec.ID))
	fmt.Printf("  Status:          %s\n", coloredStatus(rec.Status))
	if rec.PaymentMethod != "" {
		fmt.Printf("  Rail:            %s\n", rec.PaymentMethod)
	}
	if rec.SenderCurrency != "" {
		fmt.Printf("  Sent:            %s\n", money(rec.SenderAmount, rec.SenderCurrency))
	}
	if rec.RecipientCurrency != "" {
		fmt.Printf("  Recipient gets:  %s\n", money(rec.PayoutAmount(), rec.RecipientCurrency))
	}
	if rec.RecipientName != "" {
		fmt.Printf("  Recipient:       %s, %s %s\n", rec.RecipientName, rec.RecipientBank, rec.RecipientAccount)
	}
	if rec.TxHash != "" {
		fmt.Printf("  Tx Hash:         %s\n", color.HiBlackString(rec.TxHash))
	}
	link := rec.BlockchainTxURL
	if link == "" {
		link = txURL
	}
	if link != "" {
		fmt.Printf("  Explorer:        %s\n", hintStyle.Render(link))
	}
	if !rec.CreatedAt.IsZero() {
		fmt.Printf("  Created:         %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if !rec.UpdatedAt.IsZero() {
		fmt.Printf("  Last Updated:    %s\n", rec.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}
