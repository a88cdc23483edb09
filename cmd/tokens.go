package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"trustbridge/pkg/types"
)

var (
	filterSymbol   string
	filterCurrency string
)

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List the stablecoins the backend settles in",
	Long: `List the ERC-20 tokens registered with the backend.

Use --currency to see which token a fiat currency settles in.

Examples:
  trustbridge list-tokens
  trustbridge list-tokens --symbol USD
  trustbridge list-tokens --currency IDR`,
	Args: cobra.NoArgs,
	RunE: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
	tokensCmd.Flags().StringVar(&filterCurrency, "currency", "", "Resolve the token used for a currency")
}

func runListTokens(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	registry := a.tokenRegistry(cmd.Context())

	s := startSpinner("Fetching supported tokens...", !a.jsonOut)
	var list []types.Token
	if filterCurrency != "" {
		var tok types.Token
		tok, err = registry.ForCurrency(cmd.Context(), filterCurrency)
		list = []types.Token{tok}
	} else {
		list, err = registry.All(cmd.Context())
	}
	s.stop()
	if err != nil {
		return err
	}

	if filterSymbol != "" {
		var filtered []types.Token
		for _, tok := range list {
			if strings.Contains(tok.Symbol, strings.ToUpper(filterSymbol)) {
				filtered = append(filtered, tok)
			}
		}
		list = filtered
	}

	if a.jsonOut {
		return printJSON(list)
	}
	displayTokens(list, a.cfg.TokenAliases)
	return nil
}

func displayTokens(list []types.Token, aliases map[string]string) {
	if len(list) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	section("SUPPORTED TOKENS", 90)

	// currencies that settle in each token
	currencies := make(map[string][]string)
	for currency, symbol := range aliases {
		currencies[symbol] = append(currencies[symbol], currency)
	}

	for _, tok := range list {
		used := currencies[tok.Symbol]
		sort.Strings(used)

		line := fmt.Sprintf("  %-8s  %2d decimals  %s",
			color.YellowString(tok.Symbol),
			tok.Decimals,
			color.HiBlackString(tok.ContractAddress.Hex()))
		if tok.Name != "" {
			line += "  " + tok.Name
		}
		if len(used) > 0 {
			line += "  " + color.CyanString("(%s)", strings.Join(used, ", "))
		}
		fmt.Println(line)
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens\n\n", len(list))
}
