// Package config loads the optional .marginalia.toml file from a scan root.
// Configuration supplies defaults only; command-line flags always win.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the per-project configuration file looked up at the scan root.
const FileName = ".marginalia.toml"

// Config is the parsed .marginalia.toml contents.
type Config struct {
	// Include replaces the default include globs when non-empty.
	Include []string `toml:"include"`
	// Exclude replaces the default exclude globs when non-empty.
	Exclude []string `toml:"exclude"`
	// Fail is the failure policy: "warn" or "halt".
	Fail string `toml:"fail"`
}

// Load reads the config file at root. A missing file returns (nil, nil); a
// malformed file or an unknown fail policy is an error.
func Load(root string) (*Config, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	switch cfg.Fail {
	case "", "warn", "halt":
	default:
		return nil, fmt.Errorf("%s: fail must be \"warn\" or \"halt\", got %q", path, cfg.Fail)
	}
	return &cfg, nil
}
