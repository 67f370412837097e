package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestLoadParsesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
socket_path: /tmp/custom.sock
manifest_dir: /tmp/manifests
permission_workers: 4
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.sock", cfg.SocketPath)
	assert.Equal(t, "/tmp/manifests", cfg.ManifestDir)
	assert.Equal(t, 4, cfg.PermissionWorkers)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("socket_path: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnvOverridesDoesNotClobberExistingEnv(t *testing.T) {
	t.Setenv("LOCALBRIDGE_SOCKET", "/already/set.sock")

	cfg := Config{SocketPath: "/from/config.sock"}
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "/already/set.sock", os.Getenv("LOCALBRIDGE_SOCKET"))
}

func TestApplyEnvOverridesSetsAbsentVars(t *testing.T) {
	os.Unsetenv("LOCALBRIDGE_MANIFEST_DIR")

	cfg := Config{ManifestDir: "/from/config/manifests"}
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "/from/config/manifests", os.Getenv("LOCALBRIDGE_MANIFEST_DIR"))
	os.Unsetenv("LOCALBRIDGE_MANIFEST_DIR")
}
