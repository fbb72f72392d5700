package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/sync_test")
	t.Setenv("CRON_SECRET", "secret")
	t.Setenv("SOURCE_A_CODE", "alpha")
	t.Setenv("SOURCE_A_TOKEN", "token-a")
	t.Setenv("SOURCE_B_CODE", "beta")
	t.Setenv("SOURCE_B_TOKEN", "token-b")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Minute, cfg.SyncInterval)
	assert.False(t, cfg.ExternalCron)
	assert.NotEmpty(t, cfg.ProducerURL)
	assert.NotEmpty(t, cfg.WithdrawURL)
	assert.Equal(t, 20*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 2*time.Second, cfg.ProducerSettle)

	assert.Equal(t, "alpha", cfg.Sources[0].Code)
	assert.Equal(t, "token-a", cfg.Sources[0].Token)
	assert.Equal(t, "beta", cfg.Sources[1].Code)
	assert.Equal(t, "token-b", cfg.Sources[1].Token)
}

func TestLoad_MissingRequiredVarsListedTogether(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CRON_SECRET", "")
	t.Setenv("SOURCE_A_CODE", "")
	t.Setenv("SOURCE_A_TOKEN", "")
	t.Setenv("SOURCE_B_CODE", "")
	t.Setenv("SOURCE_B_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "CRON_SECRET")
	assert.Contains(t, err.Error(), "SOURCE_A_CODE")
	assert.Contains(t, err.Error(), "SOURCE_A_TOKEN")
	assert.Contains(t, err.Error(), "SOURCE_B_CODE")
	assert.Contains(t, err.Error(), "SOURCE_B_TOKEN")
}

func TestLoad_IntervalOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_INTERVAL_MINUTES", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
}

func TestLoad_InvalidInterval(t *testing.T) {
	setRequiredEnv(t)

	for _, raw := range []string{"0", "-3", "soon"} {
		t.Setenv("SYNC_INTERVAL_MINUTES", raw)
		_, err := Load()
		assert.Error(t, err, "interval %q must be rejected", raw)
	}
}

func TestLoad_DuplicateSourceCodes(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SOURCE_B_CODE", "alpha")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestLoad_ExternalCron(t *testing.T) {
	setRequiredEnv(t)

	for raw, want := range map[string]bool{"1": true, "true": true, "YES": true, "0": false, "off": false, "": false} {
		t.Setenv("SYNC_EXTERNAL_CRON", raw)
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, want, cfg.ExternalCron, "SYNC_EXTERNAL_CRON=%q", raw)
	}
}

func TestLoad_SourceCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SOURCE_A_CHANNEL", "ch1")
	t.Setenv("SOURCE_A_UID", "u1")
	t.Setenv("SOURCE_A_USER_AGENT", "agent-a")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ch1", cfg.Sources[0].Channel)
	assert.Equal(t, "u1", cfg.Sources[0].UID)
	assert.Equal(t, "agent-a", cfg.Sources[0].UserAgent)
	assert.Empty(t, cfg.Sources[1].Channel)
}
