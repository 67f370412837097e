// Package commands assembles the localbridged CLI: serve starts the
// daemon, and the manifest/credential/oauth subcommands give operators a
// way to inspect and manage its state without talking JSON-RPC by hand.
package commands

import (
	"github.com/spf13/cobra"
)

// Root builds the top-level localbridged command.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "localbridged",
		Short: "Per-user system-integration daemon",
	}

	cmd.AddCommand(serveCommand())
	cmd.AddCommand(manifestCommand())
	cmd.AddCommand(credentialCommand())
	cmd.AddCommand(oauthCommand())

	return cmd
}
