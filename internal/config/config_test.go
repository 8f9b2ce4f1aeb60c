package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "")
	t.Setenv("SCHEDULER_INTERVAL", "")
	t.Setenv("REDIS_ADDR", "")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.DB.Type)
	assert.Equal(t, int32(5), cfg.DB.PoolMin)
	assert.Equal(t, int32(20), cfg.DB.PoolMax)
	assert.Equal(t, 3*time.Second, cfg.DB.AcquireTimeout)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "postgres")
	t.Setenv("DATABASE_POOL_MAX", "40")
	t.Setenv("DATABASE_ACQUIRE_TIMEOUT_MS", "250")
	t.Setenv("SCHEDULER_INTERVAL", "15m")
	t.Setenv("SCHEDULER_ENABLED", "off")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.DB.Type)
	assert.Equal(t, int32(40), cfg.DB.PoolMax)
	assert.Equal(t, 250*time.Millisecond, cfg.DB.AcquireTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoadAdminExternalIDs(t *testing.T) {
	t.Setenv("ADMIN_EXTERNAL_IDS", " tg:root, ,tg:ops ")
	assert.Equal(t, []string{"tg:root", "tg:ops"}, Load().AdminExternalIDs)

	t.Setenv("ADMIN_EXTERNAL_IDS", "")
	assert.Empty(t, Load().AdminExternalIDs)
}

func TestPolicyHolderDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewPolicyHolder(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), holder.Get())
}

func TestPolicyHolderMergesFileWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yml")
	require.NoError(t, os.WriteFile(path, []byte(`policy:
  rateLimit:
    campaignCreate: 3
  chat:
    confirmationWindow: 2h
`), 0o600))

	holder, err := NewPolicyHolder(Config{PolicyFilePath: path}, nil)
	require.NoError(t, err)

	p := holder.Get()
	assert.Equal(t, 3, p.RateLimit.CampaignCreate)
	assert.Equal(t, 30, p.RateLimit.OfferCreate)
	assert.Equal(t, time.Hour, p.RateLimit.Window)
	assert.Equal(t, 2*time.Hour, p.Chat.ConfirmationWindow)
}

func TestPolicyHolderRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yml")
	require.NoError(t, os.WriteFile(path, []byte(`policy:
  sweep:
    batchSize: -1
`), 0o600))

	_, err := NewPolicyHolder(Config{PolicyFilePath: path}, nil)
	assert.Error(t, err)
}

func TestPolicyHolderReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yml")
	require.NoError(t, os.WriteFile(path, []byte("policy:\n  sweep:\n    batchSize: 50\n"), 0o600))

	holder, err := NewPolicyHolder(Config{PolicyFilePath: path}, nil)
	require.NoError(t, err)
	require.Equal(t, 50, holder.Get().Sweep.BatchSize)

	require.NoError(t, os.WriteFile(path, []byte("policy:\n  sweep:\n    batchSize: 75\n"), 0o600))
	assert.Eventually(t, func() bool {
		return holder.Get().Sweep.BatchSize == 75
	}, 5*time.Second, 20*time.Millisecond)
}
