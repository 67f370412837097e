// Package paths resolves the canonical on-disk locations the daemon uses:
// the listening socket, the manifest directory, and the credential file.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const appDirName = ".localbridge"

// HomeDir returns the invoking user's home directory.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	if home == "" {
		return "", fmt.Errorf("home directory is empty")
	}
	return home, nil
}

// AppDir returns $HOME/.localbridge, creating it (owner-only) if missing.
func AppDir() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, appDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating app directory %s: %w", dir, err)
	}
	return dir, nil
}

// SocketPath returns the path to the daemon's Unix domain socket.
// Overridable via LOCALBRIDGE_SOCKET per spec.md §6.
func SocketPath() (string, error) {
	if v := os.Getenv("LOCALBRIDGE_SOCKET"); v != "" {
		return v, nil
	}
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "localbridge.sock"), nil
}

// ManifestDir returns the directory watched for manifest *.json files.
// Overridable via LOCALBRIDGE_MANIFEST_DIR.
func ManifestDir() (string, error) {
	if v := os.Getenv("LOCALBRIDGE_MANIFEST_DIR"); v != "" {
		return v, nil
	}
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	manifests := filepath.Join(dir, "manifests")
	if err := os.MkdirAll(manifests, 0o700); err != nil {
		return "", fmt.Errorf("creating manifest directory %s: %w", manifests, err)
	}
	return manifests, nil
}

// CredentialFile returns the path to the encrypted credential store.
// Overridable via LOCALBRIDGE_CREDENTIAL_FILE.
func CredentialFile() (string, error) {
	if v := os.Getenv("LOCALBRIDGE_CREDENTIAL_FILE"); v != "" {
		return v, nil
	}
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.enc"), nil
}

// HelperDir returns the directory bundled helper binaries are resolved from
// in release builds. Debug builds look relative to the working directory
// instead (see pkg/helperimpl).
func HelperDir() (string, error) {
	if v := os.Getenv("LOCALBRIDGE_HELPER_DIR"); v != "" {
		return v, nil
	}
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "helpers"), nil
}

// ActivityLogFile returns the path to the activity ring's sqlite mirror.
func ActivityLogFile() (string, error) {
	if v := os.Getenv("LOCALBRIDGE_ACTIVITY_DB"); v != "" {
		return v, nil
	}
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "activity.db"), nil
}
