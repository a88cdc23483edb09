package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"trustbridge/pkg/transfer"
	"trustbridge/pkg/types"
)

var (
	historyLimit  int
	historyOffset int
	historyStatus string
	historySearch string
	invoiceOutput string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past transfers",
	Long: `List your transfers, newest first.

Examples:
  trustbridge history
  trustbridge history --status completed --limit 50
  trustbridge history --search budi`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var invoiceCmd = &cobra.Command{
	Use:   "invoice <transfer-id>",
	Short: "Download the PDF invoice of a transfer",
	Long: `Download the PDF invoice of a transfer.

Examples:
  trustbridge invoice tr_123
  trustbridge invoice tr_123 -o receipt.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoice,
}

func init() {
	rootCmd.AddCommand(historyCmd, invoiceCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Transfers per page")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "Transfers to skip")
	historyCmd.Flags().StringVar(&historyStatus, "status", "all", "Only show transfers with this status")
	historyCmd.Flags().StringVar(&historySearch, "search", "", "Match id, recipient, account, bank or tx hash")

	invoiceCmd.Flags().StringVarP(&invoiceOutput, "output", "o", "", "Output file (default invoice-<id>.pdf)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.requireLogin(); err != nil {
		return err
	}

	svc := transfer.NewService(a.api, nil, nil, nil, transfer.Config{}, a.logger.Named("transfer"))

	s := startSpinner("Fetching history...", !a.jsonOut)
	page, err := svc.History(cmd.Context(), transfer.Filter{
		Limit:  historyLimit,
		Offset: historyOffset,
		Status: historyStatus,
		Search: historySearch,
	})
	s.stop()
	if err != nil {
		return err
	}

	if a.jsonOut {
		return printJSON(page)
	}
	displayHistory(page)
	return nil
}

func displayHistory(page *types.TransferHistory) {
	if len(page.Transfers) == 0 {
		fmt.Println("\nNo transfers found.")
		return
	}

	section("TRANSFER HISTORY", 100)
	for _, rec := range page.Transfers {
		fmt.Printf("\n  %s  %s  %s\n",
			color.CyanString(rec.ID),
			coloredStatus(rec.Status),
			hintStyle.Render(rec.CreatedAt.Local().Format("2006-01-02 15:04")))
		fmt.Printf("    %s -> %s  %s\n",
			money(rec.SenderAmount, rec.SenderCurrency),
			money(rec.PayoutAmount(), rec.RecipientCurrency),
			rec.RecipientName)
	}
	fmt.Println("\n" + strings.Repeat("=", 100))
	fmt.Printf("\nShowing %d of %d (offset %d)\n\n", len(page.Transfers), page.Count, page.Offset)
}

func runInvoice(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.requireLogin(); err != nil {
		return err
	}

	id := args[0]
	path := invoiceOutput
	if path == "" {
		path = fmt.Sprintf("invoice-%s.pdf", id)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	svc := transfer.NewService(a.api, nil, nil, nil, transfer.Config{}, a.logger.Named("transfer"))

	s := startSpinner("Downloading invoice...", !a.jsonOut)
	n, err := svc.Invoice(cmd.Context(), id, f)
	s.stop()
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}

	if a.jsonOut {
		return printJSON(map[string]any{"file": path, "bytes": n})
	}
	printSuccess(fmt.Sprintf("Invoice saved to %s (%d bytes)", path, n))
	return nil
}
