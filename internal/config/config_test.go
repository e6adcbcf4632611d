package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 90, cfg.Reconciliation.AutoThreshold)
	assert.Equal(t, 70, cfg.Reconciliation.ReviewThreshold)
	assert.Equal(t, 100, cfg.Reconciliation.BatchLimit)
	assert.Equal(t, 30*time.Second, cfg.Ledger.ChartCacheTTL)
	require.NoError(t, cfg.Validate())
}

func TestRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = ":9090"
	cfg.Database.URL = "postgres://localhost/ledger"
	cfg.Reconciliation.AutoThreshold = 95
	cfg.Reconciliation.BatchLimit = 25

	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", got.Server.Addr)
	assert.Equal(t, "postgres://localhost/ledger", got.Database.URL)
	assert.Equal(t, 95, got.Reconciliation.AutoThreshold)
	assert.Equal(t, 70, got.Reconciliation.ReviewThreshold)
	assert.Equal(t, 25, got.Reconciliation.BatchLimit)
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":3000\"\n"), 0o644))

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":3000", got.Server.Addr)
	assert.Equal(t, 90, got.Reconciliation.AutoThreshold)
	assert.Equal(t, 70, got.Reconciliation.ReviewThreshold)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-host/ledger")
	t.Setenv("SERVER_ADDR", ":7070")

	got, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-host/ledger", got.Database.URL)
	assert.Equal(t, ":7070", got.Server.Addr)
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults pass", func(c *Config) {}, true},
		{"review above auto", func(c *Config) { c.Reconciliation.ReviewThreshold = 95 }, false},
		{"auto out of range", func(c *Config) { c.Reconciliation.AutoThreshold = 120 }, false},
		{"auto zero", func(c *Config) { c.Reconciliation.AutoThreshold = 0 }, false},
		{"review zero is allowed", func(c *Config) { c.Reconciliation.ReviewThreshold = 0 }, true},
		{"batch limit zero", func(c *Config) { c.Reconciliation.BatchLimit = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
