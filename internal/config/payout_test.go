package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPayoutConfigDefaultsWhenFileMissing(t *testing.T) {
	holder, err := NewPayoutConfigHolderFromPaths(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 7, cfg.WaitingPeriodDays)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 300, cfg.ScanPageSize())
	assert.Equal(t, "70", cfg.InstructorSharePercent.String())
	assert.Equal(t, "10", cfg.CommissionPercent.String())
	assert.Equal(t, 7*24*time.Hour, cfg.WaitingPeriod())
}

func TestPayoutConfigReadsFileAndKeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`payout:
  waitingPeriodDays: 3
  instructorSharePercent: "62.5"
  batchSize: 25
  commissionEnabled: false
  settlementInterval: 15m
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "payout.yml"), content, 0o600))

	holder, err := NewPayoutConfigHolderFromPaths(zaptest.NewLogger(t), dir)
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 3, cfg.WaitingPeriodDays)
	assert.Equal(t, "62.5", cfg.InstructorSharePercent.String())
	assert.Equal(t, 25, cfg.BatchSize)
	assert.False(t, cfg.CommissionEnabled)
	assert.Equal(t, 15*time.Minute, cfg.SettlementInterval)
	assert.Equal(t, "10", cfg.CommissionPercent.String())
	assert.Equal(t, 3, cfg.OversampleFactor)
}

func TestPayoutConfigRejectsOutOfRangePercent(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`payout:
  commissionPercent: "120"
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "payout.yml"), content, 0o600))

	_, err := NewPayoutConfigHolderFromPaths(zaptest.NewLogger(t), dir)
	require.Error(t, err)
}

func TestPayoutConfigHolderStoreValidates(t *testing.T) {
	holder := NewStaticPayoutConfigHolder(DefaultPayoutConfig())

	bad := DefaultPayoutConfig()
	bad.BatchSize = 0
	require.Error(t, holder.Store(bad))
	assert.Equal(t, 100, holder.Get().BatchSize)

	good := DefaultPayoutConfig()
	good.BatchSize = 10
	require.NoError(t, holder.Store(good))
	assert.Equal(t, 10, holder.Get().BatchSize)
}
