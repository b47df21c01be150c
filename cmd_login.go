package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"coursedesk/internal/credential"
	"coursedesk/internal/crypto"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

var (
	loginToken      string
	logoutForgetKey bool
)

// loginCmd stores an API token for the active profile
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the API token used for requests and live updates",
	Long: `Encrypts and stores the API token for the active profile.

Pass --token -, or omit --token, to read the token from stdin. A running
"coursedesk watch" notices the change and reconnects with the new token.`,
	RunE: runLogin,
}

// logoutCmd removes the stored token
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored API token",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringVarP(&loginToken, "token", "t", "", "API token (\"-\" reads stdin)")
	logoutCmd.Flags().BoolVar(&logoutForgetKey, "forget-key", false, "Also delete the keychain encryption key (other profiles must log in again)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	token := loginToken
	if token == "" || token == "-" {
		fmt.Fprint(cmd.ErrOrStderr(), "Token: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read token: %w", err)
		}
		token = strings.TrimSpace(line)
	}

	app := NewApp(cfg, logger)
	if err := app.openStore(); err != nil {
		return err
	}
	defer app.db.Close()

	if err := app.store.Save(cmd.Context(), cfg.Profile, token); err != nil {
		return err
	}
	logger.Info("credential saved", zap.String("profile", cfg.Profile))
	fmt.Fprintf(cmd.OutOrStdout(), "Token saved for profile %q\n", cfg.Profile)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	app := NewApp(cfg, logger)
	if err := app.openStore(); err != nil {
		return err
	}
	defer app.db.Close()

	err := app.store.Delete(cmd.Context(), cfg.Profile)
	if err != nil && !errors.Is(err, credential.ErrNotFound) {
		return err
	}
	if logoutForgetKey {
		if err := crypto.DeleteKey(); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to delete encryption key: %w", err)
		}
		logger.Info("encryption key removed from keychain")
	}
	if errors.Is(err, credential.ErrNotFound) {
		fmt.Fprintf(cmd.OutOrStdout(), "No token stored for profile %q\n", cfg.Profile)
		return nil
	}
	logger.Info("credential removed", zap.String("profile", cfg.Profile))
	fmt.Fprintf(cmd.OutOrStdout(), "Signed out of profile %q\n", cfg.Profile)
	return nil
}
