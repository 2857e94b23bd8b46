package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
mode: demo
universe: [QQQ, SPY, TQQQ]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeDemo, cfg.Mode)
	assert.Equal(t, "America/Los_Angeles", cfg.Timezones.Scheduling)
	assert.Equal(t, "America/New_York", cfg.Timezones.Market)
	assert.Equal(t, 90.0, cfg.Allocation.SOCapitalPct)
	assert.Equal(t, 35.0, cfg.Allocation.MaxPositionSizePct)
	assert.Equal(t, 15, cfg.Allocation.MaxConcurrentPositions)
	assert.Equal(t, 0.0075, cfg.Stops.BreakevenThreshold)
	assert.Equal(t, 0.9, cfg.TargetDeploymentFraction())
	assert.Equal(t, 0.35, cfg.MaxPositionFraction())
	assert.Equal(t, 100000.0, cfg.Account.StartingCash)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("ORB_API_KEY", "secret-key")
	path := writeConfig(t, `
mode: live
universe: [SPY]
broker:
  api_key: "${ORB_API_KEY}"
  account_id: "acct-1"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.Broker.APIKey)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
mode: demo
universe: [SPY]
bogus_field: true
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRequiresUniverse(t *testing.T) {
	cfg := &Config{Mode: ModeDemo}
	cfg.Normalize()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "universe")
}

func TestValidateRequiresBrokerCredsInLiveMode(t *testing.T) {
	cfg := &Config{Mode: ModeLive, Universe: []string{"SPY"}}
	cfg.Normalize()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.api_key")
}

func TestValidateRejectsBadTrailingRange(t *testing.T) {
	cfg := &Config{Mode: ModeDemo, Universe: []string{"SPY"}}
	cfg.Normalize()
	cfg.Stops.TrailingMin = 0.05
	cfg.Stops.TrailingMax = 0.01
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing_min")
}
