// Package config loads the daemon's YAML configuration file: the single
// source of truth for on-disk path overrides. Environment variables
// (pkg/paths) still win over the file, matching the override order the
// daemon has always used; the file exists so a path override survives
// without exporting shell variables into every launch context.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's on-disk configuration. Every field is optional;
// a zero value means "use the default resolved by pkg/paths".
type Config struct {
	SocketPath       string `yaml:"socket_path,omitempty"`
	ManifestDir      string `yaml:"manifest_dir,omitempty"`
	CredentialFile   string `yaml:"credential_file,omitempty"`
	HelperDir        string `yaml:"helper_dir,omitempty"`
	ActivityLogFile  string `yaml:"activity_log_file,omitempty"`
	PermissionWorkers int   `yaml:"permission_workers,omitempty"`
}

// Load reads and parses the YAML config at path. A missing file is not
// an error: it returns a zero-value Config so every path falls back to
// pkg/paths' defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnvOverrides mutates env so every non-empty path field in cfg is
// exported as the corresponding LOCALBRIDGE_* variable pkg/paths reads,
// unless that variable is already set. Environment variables set before
// the daemon started always take precedence over the config file.
// PermissionWorkers has no LOCALBRIDGE_* variable and is not exported.
func (cfg Config) ApplyEnvOverrides() {
	setIfAbsent("LOCALBRIDGE_SOCKET", cfg.SocketPath)
	setIfAbsent("LOCALBRIDGE_MANIFEST_DIR", cfg.ManifestDir)
	setIfAbsent("LOCALBRIDGE_CREDENTIAL_FILE", cfg.CredentialFile)
	setIfAbsent("LOCALBRIDGE_HELPER_DIR", cfg.HelperDir)
	setIfAbsent("LOCALBRIDGE_ACTIVITY_DB", cfg.ActivityLogFile)
}

func setIfAbsent(key, value string) {
	if value == "" {
		return
	}
	if _, set := os.LookupEnv(key); set {
		return
	}
	os.Setenv(key, value)
}
