package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are treated as fatal errors with "did you
// mean?" suggestions.
func Load(path string, log *slog.Logger) (*Config, error) {
	if log == nil {
		log = slog.Default()
	}

	log.Debug("config: loading", slog.String("path", path))

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	log.Debug("config: parsed successfully", slog.String("path", path))

	return cfg, nil
}

// LoadOrDefault reads path if it exists, otherwise returns a Config
// populated with every default value — the zero-config first-run path.
func LoadOrDefault(path string, log *slog.Logger) (*Config, error) {
	if log == nil {
		log = slog.Default()
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Debug("config: file not found, using defaults", slog.String("path", path))
		return DefaultConfig(), nil
	}

	return Load(path, log)
}
