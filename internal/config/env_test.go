package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_PicksUpConfigPath(t *testing.T) {
	t.Setenv(EnvConfig, "/tmp/custom-config.toml")

	overrides := ReadEnvOverrides()
	assert.Equal(t, "/tmp/custom-config.toml", overrides.ConfigPath)
}

func TestResolveConfigPath_PrefersEnvOverDefault(t *testing.T) {
	path := ResolveConfigPath(EnvOverrides{ConfigPath: "/tmp/from-env.toml"})
	assert.Equal(t, "/tmp/from-env.toml", path)
}

func TestResolveConfigPath_FallsBackToDefault(t *testing.T) {
	path := ResolveConfigPath(EnvOverrides{})
	assert.Equal(t, DefaultConfigPath(), path)
}
