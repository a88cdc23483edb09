package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trustbridge/pkg/parser"
	"trustbridge/pkg/types"
)

var (
	loginPhone   string
	loginCountry string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with your WhatsApp number",
	Long: `Log in to the TrustBridge backend. The session is stored locally and
refreshed automatically when the access token expires.

Examples:
  trustbridge login
  trustbridge login --phone 81234567890 --country +62`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)

	loginCmd.Flags().StringVar(&loginPhone, "phone", "", "WhatsApp number without the country code")
	loginCmd.Flags().StringVar(&loginCountry, "country", "+62", "Country calling code")
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if loginPhone == "" {
		if a.jsonOut {
			return fmt.Errorf("%w: --phone is required with --json", parser.ErrInvalidInput)
		}
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Country code").
					Value(&loginCountry).
					Validate(parser.ValidateCountryCode),
				huh.NewInput().
					Title("WhatsApp number").
					Description("Without the country code, e.g. 81234567890").
					Value(&loginPhone).
					Validate(parser.ValidatePhone),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	if err := parser.ValidateCountryCode(loginCountry); err != nil {
		return err
	}
	if err := parser.ValidatePhone(loginPhone); err != nil {
		return err
	}

	s := startSpinner("Logging in...", !a.jsonOut)
	resp, err := a.api.Login(cmd.Context(), types.LoginRequest{
		WhatsappNumber: parser.NormalizePhone(loginPhone),
		CountryCode:    loginCountry,
	})
	s.stop()
	if err != nil {
		return err
	}

	if err := a.session.SetLogin(resp.User, resp.Tokens); err != nil {
		return err
	}

	if a.jsonOut {
		return printJSON(resp.User)
	}
	printSuccess(fmt.Sprintf("Logged in as %s%s", resp.User.CountryCode, resp.User.WhatsappNumber))
	if resp.User.Status != types.UserVerified {
		color.Yellow("Account status: %s. Some transfers may require verification.\n", resp.User.Status)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if a.session.IsAuthenticated() {
		if err := a.api.Logout(cmd.Context()); err != nil {
			a.logger.Warn("server-side logout failed", zap.Error(err))
		}
	}
	if err := a.session.Clear(); err != nil {
		return err
	}

	if a.jsonOut {
		return printJSON(map[string]bool{"logged_out": true})
	}
	printSuccess("Logged out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.requireLogin(); err != nil {
		return err
	}
	user := a.session.User()
	if user == nil {
		return fmt.Errorf("session has no user record, log in again")
	}

	if a.jsonOut {
		return printJSON(user)
	}

	section("ACCOUNT", 60)
	fmt.Printf("\n  User ID:   %s\n", color.CyanString(user.ID))
	fmt.Printf("  WhatsApp:  %s%s\n", user.CountryCode, user.WhatsappNumber)
	fmt.Printf("  Status:    %s\n", user.Status)
	if user.KycNftTokenID != "" {
		fmt.Printf("  KYC NFT:   %s\n", user.KycNftTokenID)
	}
	fmt.Printf("  Session:   %s\n", hintStyle.Render(a.session.Path()))
	fmt.Println()
	return nil
}
