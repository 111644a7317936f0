package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, int64(3000), cfg.Ledger.InitialBalance)
	assert.Equal(t, 5, cfg.Ledger.MaxAttempts)
	assert.Equal(t, int64(100), cfg.Attendance.Reward)
	assert.Equal(t, "Asia/Seoul", cfg.Attendance.Timezone)
	assert.Equal(t, "points.ledger", cfg.Kafka.Topic.Ledger)
	require.Contains(t, cfg.Game.Odds, "even")
	assert.Equal(t, 0.5, cfg.Game.Odds["even"].SuccessRate)
	assert.Equal(t, 2.0, cfg.Game.Odds["even"].Odds)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
database:
  driver: sqlite
  path: /tmp/points.db
ledger:
  max_attempts: 3
  retry_backoff: 25ms
game:
  odds:
    coin:
      success_rate: 0.5
      odds: 1.9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("FANPOINTS_ATTENDANCE_REWARD", "250")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Ledger.MaxAttempts)
	assert.Equal(t, 25*time.Millisecond, cfg.Ledger.RetryBackoff)
	assert.Equal(t, int64(250), cfg.Attendance.Reward)
	require.Contains(t, cfg.Game.Odds, "coin")
	assert.Equal(t, 1.9, cfg.Game.Odds["coin"].Odds)
}

// 仓库自带的示例配置必须能通过校验，键名与 setDefaults 一致
func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)

	assert.True(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Redis.UserLock)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"card", "bank_transfer", "mobile"}, cfg.Ledger.PaymentMethods)
	assert.Equal(t, 10*time.Minute, cfg.Jobs.ReconcileWindow)
	for _, name := range []string{"safe", "even", "risky"} {
		assert.Contains(t, cfg.Game.Odds, name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database:   DatabaseConfig{Driver: "postgres"},
			Ledger:     LedgerConfig{InitialBalance: 3000, MaxAttempts: 5},
			Attendance: AttendanceConfig{Reward: 100, Timezone: "UTC"},
			Game:       GameConfig{Odds: map[string]OddsConfig{"even": {SuccessRate: 0.5, Odds: 2}}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "negative_initial_balance", mutate: func(c *Config) { c.Ledger.InitialBalance = -1 }, wantErr: true},
		{name: "zero_attempts", mutate: func(c *Config) { c.Ledger.MaxAttempts = 0 }, wantErr: true},
		{name: "zero_reward", mutate: func(c *Config) { c.Attendance.Reward = 0 }, wantErr: true},
		{name: "bad_timezone", mutate: func(c *Config) { c.Attendance.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "success_rate_above_one", mutate: func(c *Config) {
			c.Game.Odds["even"] = OddsConfig{SuccessRate: 1.5, Odds: 2}
		}, wantErr: true},
		{name: "non_positive_odds", mutate: func(c *Config) {
			c.Game.Odds["even"] = OddsConfig{SuccessRate: 0.5, Odds: 0}
		}, wantErr: true},
		{name: "unknown_driver", mutate: func(c *Config) { c.Database.Driver = "mongo" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
