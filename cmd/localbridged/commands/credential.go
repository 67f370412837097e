package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/localbridge/localbridged/cmd/localbridged/internal/formatting"
	"github.com/localbridge/localbridged/pkg/credstore"
	"github.com/localbridge/localbridged/pkg/cryptostore"
	"github.com/localbridge/localbridged/pkg/paths"
)

func credentialCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credential",
		Aliases: []string{"cred"},
		Short:   "Manage the encrypted credential store",
	}

	cmd.AddCommand(credentialListCommand())
	cmd.AddCommand(credentialDeleteCommand())

	return cmd
}

func openStoreForCLI() (*credstore.Store, error) {
	credentialFile, err := paths.CredentialFile()
	if err != nil {
		return nil, err
	}
	key, err := cryptostore.DeriveMasterKey(machineIdentity(), currentUsername())
	if err != nil {
		return nil, fmt.Errorf("deriving master key: %w", err)
	}
	// key is retained by the returned Store for re-sealing on every
	// subsequent write; it must outlive this call.
	return credstore.Open(credentialFile, key)
}

func credentialListCommand() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List stored token records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStoreForCLI()
			if err != nil {
				return err
			}

			records := store.ListTokenRecords(provider)
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				expires := "-"
				if !rec.ExpiresAt.IsZero() {
					expires = rec.ExpiresAt.Format(time.RFC3339)
				}
				rows = append(rows, []string{rec.Provider, rec.Account, expires})
			}
			formatting.PrettyPrintTable(rows, nil, []string{"PROVIDER", "ACCOUNT", "EXPIRES"})
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "only list accounts for this provider")

	return cmd
}

func credentialDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <provider> <account>",
		Short: "Delete a stored token record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStoreForCLI()
			if err != nil {
				return err
			}
			return store.DeleteTokenRecord(args[0], args[1])
		},
	}
}
