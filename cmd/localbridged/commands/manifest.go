package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localbridge/localbridged/cmd/localbridged/internal/formatting"
	"github.com/localbridge/localbridged/pkg/manifest"
	"github.com/localbridge/localbridged/pkg/paths"
)

func manifestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect loaded capability manifests",
	}

	cmd.AddCommand(manifestListCommand())
	cmd.AddCommand(manifestMethodsCommand())

	return cmd
}

func manifestListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List manifests currently loaded from the manifest directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := paths.ManifestDir()
			if err != nil {
				return err
			}
			watcher, err := manifest.NewWatcher(dir)
			if err != nil {
				return err
			}
			snap := watcher.Snapshot()

			rows := make([][]string, 0, len(snap.Manifests))
			for _, m := range snap.Manifests {
				rows = append(rows, []string{m.ID, m.Name, string(m.Implementation.Kind), fmt.Sprintf("%d", len(m.Tools))})
			}
			formatting.PrettyPrintTable(rows, nil, []string{"ID", "NAME", "IMPLEMENTATION", "TOOLS"})
			return nil
		},
	}
}

func manifestMethodsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List every wire method currently bound to a tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := paths.ManifestDir()
			if err != nil {
				return err
			}
			watcher, err := manifest.NewWatcher(dir)
			if err != nil {
				return err
			}
			snap := watcher.Snapshot()

			rows := make([][]string, 0, len(snap.MethodIndex))
			for method, binding := range snap.MethodIndex {
				rows = append(rows, []string{method, binding.ManifestID, binding.ToolName})
			}
			formatting.PrettyPrintTable(rows, nil, []string{"METHOD", "MANIFEST", "TOOL"})
			return nil
		},
	}
}
