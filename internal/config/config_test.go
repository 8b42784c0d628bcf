package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-exchange/internal/pda"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "4000", cfg.Port)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, pda.MustParse(DefaultProgramID), cfg.ProgramID)
	assert.True(t, cfg.KeeperAddress.IsZero())
	assert.Empty(t, cfg.KafkaBrokers)
	assert.True(t, cfg.AccessLog)
}

func TestLoadFromEnvFile(t *testing.T) {
	admin := "11111111111111111111111111111111"
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"PORT=9000\nSTORE=memory\nSWEEP_INTERVAL=15s\nKAFKA_BROKERS=a:9092,b:9092\nADMIN_ADDRESSES="+admin+"\n"), 0o600))

	// godotenv never overrides what the process already has.
	t.Setenv("PORT", "7000")
	for _, k := range []string{"STORE", "SWEEP_INTERVAL", "KAFKA_BROKERS", "ADMIN_ADDRESSES"} {
		k := k
		t.Cleanup(func() { os.Unsetenv(k) })
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 15*time.Second, cfg.SweepInterval)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.IsAdmin(pda.MustParse(admin)))
	assert.False(t, cfg.IsAdmin(cfg.ProgramID))
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("STORE", "sqlite")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("STORE", "memory")
	t.Setenv("KEEPER_ADDRESS", "not-base58-0OIl")
	_, err = Load("")
	assert.Error(t, err)
}
