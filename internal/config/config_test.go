package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o644))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := writeConfig(t, "venue:\n  symbol: EURUSD\n")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "EURUSD", cfg.Venue.Symbol)
	assert.Equal(t, 3, cfg.Venue.RetryAttempts)
	assert.Equal(t, 5*time.Second, cfg.Venue.RetryDelay)
	assert.Equal(t, 0.01, cfg.Trading.BaseLot)
	assert.Equal(t, 0.02, cfg.Trading.StrongLot)
	assert.Equal(t, 1.8, cfg.Trading.StrongMoveThreshold)
	assert.Equal(t, 60*time.Second, cfg.Trading.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Trading.PhaseCooldown)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10000.0, cfg.Venue.PaperBalance)
	assert.Equal(t, 100.0, cfg.Venue.ContractSize)
}

func TestLoadConfig_DurationsAndEnvOverride(t *testing.T) {
	dir := writeConfig(t, `
venue:
  login: "from-file"
  retry_delay: 250ms
trading:
  poll_interval: 2m
  phase_cooldown: 15s
`)
	t.Setenv("VENUE_LOGIN", "from-env")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Venue.Login)
	assert.Equal(t, 250*time.Millisecond, cfg.Venue.RetryDelay)
	assert.Equal(t, 2*time.Minute, cfg.Trading.PollInterval)
	assert.Equal(t, 15*time.Second, cfg.Trading.PhaseCooldown)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)
}
