//go:build debug

package helperimpl

import "path/filepath"

// ResolveHelper resolves entrypoint relative to the working directory in
// debug builds, so a freshly built helper binary is picked up without a
// bundled-binaries install step.
func ResolveHelper(entrypoint string) (string, error) {
	if filepath.IsAbs(entrypoint) {
		return entrypoint, nil
	}
	return filepath.Join(".", entrypoint), nil
}
