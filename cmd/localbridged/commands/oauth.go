package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/localbridge/localbridged/pkg/authbroker"
)

var (
	statusOK   = color.New(color.FgGreen)
	statusInfo = color.New(color.FgCyan)
)

func oauthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Manage OAuth provider accounts",
	}

	cmd.AddCommand(oauthRevokeCommand())
	cmd.AddCommand(oauthRefreshCommand())

	return cmd
}

func oauthRevokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <provider> <account>",
		Short: "Revoke a stored OAuth account's token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, account := args[0], args[1]
			statusInfo.Fprintf(cmd.OutOrStdout(), "Revoking OAuth access for %s/%s...\n", provider, account)

			store, err := openStoreForCLI()
			if err != nil {
				return err
			}
			broker := authbroker.New(store, nil)
			if err := broker.Revoke(provider, account); err != nil {
				return fmt.Errorf("failed to revoke OAuth access: %w", err)
			}

			statusOK.Fprintf(cmd.OutOrStdout(), "OAuth access revoked for %s/%s\n", provider, account)
			return nil
		},
	}
}

func oauthRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <provider> <account>",
		Short: "Refresh a stored OAuth account's token if it expires within the guard window; a token further from expiry is left as is",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, account := args[0], args[1]

			store, err := openStoreForCLI()
			if err != nil {
				return err
			}
			broker := authbroker.New(store, nil)
			tok, err := broker.GetToken(cmd.Context(), provider, account, nil)
			if err != nil {
				return fmt.Errorf("failed to refresh token: %w", err)
			}

			statusOK.Fprintf(cmd.OutOrStdout(), "Token for %s/%s now expires at %s\n", provider, account, tok.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}
}
