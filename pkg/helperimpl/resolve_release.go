//go:build !debug

package helperimpl

import (
	"path/filepath"

	"github.com/localbridge/localbridged/pkg/paths"
)

// ResolveHelper resolves entrypoint against the bundled-binaries
// directory (spec.md §4.7: "located in a bundled-binaries directory
// resolved via C1"). An absolute entrypoint is used as-is.
func ResolveHelper(entrypoint string) (string, error) {
	if filepath.IsAbs(entrypoint) {
		return entrypoint, nil
	}
	dir, err := paths.HelperDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, entrypoint), nil
}
