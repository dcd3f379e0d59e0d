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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		path := writeConfig(t, "database:\n  driver: sqlite\n")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "0.10", cfg.Business.Tier1Rate)
		assert.Equal(t, "0.05", cfg.Business.Tier2Rate)
		assert.Equal(t, int64(100000), cfg.Business.MinWithdrawal)
		assert.Equal(t, 30*time.Second, cfg.Business.JobTimeout())
		assert.Equal(t, "commission_job", cfg.Kafka.Topic.CommissionJob)
	})

	t.Run("File overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
database:
  driver: postgres
business:
  tier1_rate: "0.12"
  min_withdrawal: 5000
  retry_backoff_ms: 50
`)

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "0.12", cfg.Business.Tier1Rate)
		assert.Equal(t, int64(5000), cfg.Business.MinWithdrawal)
		assert.Equal(t, 50*time.Millisecond, cfg.Business.RetryBackoff())
	})

	t.Run("Environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "database:\n  driver: sqlite\n")
		t.Setenv("LEDGER_BUSINESS_TIER2_RATE", "0.07")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "0.07", cfg.Business.Tier2Rate)
	})

	t.Run("Unsupported driver", func(t *testing.T) {
		path := writeConfig(t, "database:\n  driver: oracle\n")

		_, err := LoadConfig(path)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database driver")
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
