package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"trustbridge/pkg/chain"
)

var rootCmd = &cobra.Command{
	Use:   "trustbridge",
	Short: "A CLI for cross-border transfers settled in stablecoins",
	Long: `trustbridge sends money abroad through the TrustBridge remittance backend.
Pay by card, or swap stablecoins on-chain from your own wallet and let the
backend pay the recipient's bank account.

Examples:
  trustbridge login --phone 81234567890 --country +62
  trustbridge quote 100 USDC to IDR
  trustbridge send 100 USDC to IDR via wallet
  trustbridge status <transfer-id> --watch
  trustbridge history --status completed`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Ctrl+C cancels the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "\n%s %s\n\n", color.RedString("Error:"), chain.Describe(err))
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", color.GreenString(message))
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
