package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 18, cfg.Adjudication.AdultAge)
	assert.False(t, cfg.Adjudication.EnforceCeilingOnSubmit)
	assert.Equal(t, "O", cfg.Adjudication.DefaultVisitType)
	assert.InDelta(t, 20, cfg.Batch.ClaimsPerSecond, 0.001)
	assert.Equal(t, 1000, cfg.Batch.Limit)
	assert.Equal(t, "./pricelists", cfg.Pricelist.LocalDir)
	assert.Equal(t, "/pricelists", cfg.Pricelist.FTPDir)
	assert.Equal(t, 3, cfg.Pricelist.FetchRetries)
	assert.Equal(t, 500, cfg.Pricelist.FetchBackoffMs)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.InDelta(t, 0.5, cfg.Monitoring.RejectionRateThreshold, 0.001)
	assert.Equal(t, 5, cfg.Monitoring.WebhookFailureThreshold)
	assert.Equal(t, 60, cfg.Monitoring.WebhookResetTimeoutSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
adjudication:
  adult_age: 21
  enforce_ceiling_on_submit: true
batch:
  claims_per_second: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 21, cfg.Adjudication.AdultAge)
	assert.True(t, cfg.Adjudication.EnforceCeilingOnSubmit)
	assert.InDelta(t, 5, cfg.Batch.ClaimsPerSecond, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 1000, cfg.Batch.Limit)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CLAIMS_STORE_DRIVER", "postgres")
	t.Setenv("CLAIMS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("CLAIMS_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes validation in every mode.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Server.Port = 8080
	cfg.Adjudication.AdultAge = 18
	cfg.Monitoring.RejectionRateThreshold = 0.5
	cfg.Pricelist.LocalDir = "./pricelists"
	return cfg
}

func TestValidateStore_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/claims"
	assert.NoError(t, cfg.Validate("store"))
}

func TestValidateStore_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "oracle"

	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_RejectionRateBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.RejectionRateThreshold = 1.5

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rejection_rate_threshold")
}

func TestValidateImport_NeedsLocalDir(t *testing.T) {
	cfg := validDefaults()
	cfg.Pricelist.LocalDir = ""

	err := cfg.Validate("import")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pricelist.local_dir is required")
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Batch.ClaimsPerSecond = -1
	cfg.Adjudication.AdultAge = 0

	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "claims_per_second")
	assert.Contains(t, err.Error(), "adult_age")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
