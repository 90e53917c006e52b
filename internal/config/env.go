package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig = "B2SDK_GO_CONFIG"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // B2SDK_GO_CONFIG: override config file path
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{ConfigPath: os.Getenv(EnvConfig)}
}

// ResolveConfigPath determines the config file path using the two-layer
// priority: environment variable > platform default.
func ResolveConfigPath(env EnvOverrides) string {
	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return DefaultConfigPath()
}
