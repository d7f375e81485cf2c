package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsOverridesEnv(t *testing.T) {
	t.Setenv("CHECKUSER_DRIVER", "postgres")
	t.Setenv("CHECKUSER_HTTP_ADDR", ":7000")
	t.Setenv("CHECKUSER_SECRET", "s")

	cfg, err := parseFlags([]string{"-driver", "sqlite", "-dsn", "/tmp/wiki.db", "-init-schema", "-seed", "events.jsonl"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "/tmp/wiki.db", cfg.DSN)
	assert.Equal(t, ":7000", cfg.HTTPAddr, "unset flags keep the environment value")
	assert.True(t, cfg.InitSchema)
	assert.Equal(t, "s", cfg.Secret)
	assert.Equal(t, "events.jsonl", cfg.SeedFile)
}

func TestParseFlagsRejectsUnknown(t *testing.T) {
	_, err := parseFlags([]string{"-bogus"})
	assert.Error(t, err)
}
