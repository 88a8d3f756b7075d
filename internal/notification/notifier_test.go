package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/smallbiznis/payout/internal/clock"
	"github.com/smallbiznis/payout/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_FallsBackToLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := New(Params{Log: zap.New(core), Clock: clock.NewFakeClock(time.Unix(0, 0))})

	require.NoError(t, n.Notify(context.Background(), EventSettlementCompleted, map[string]int{"settled": 3}))
	entries := logs.FilterMessage("event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, EventSettlementCompleted, entries[0].ContextMap()["type"])
}

func TestEventEnvelope(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx := correlation.ContextWithCorrelationID(context.Background(), "run-9")

	evt := newEvent(ctx, now, EventSettlementFailed, map[string]string{"error": "boom"})
	body, err := json.Marshal(evt)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Len(t, decoded["id"], 26)
	assert.Equal(t, EventSettlementFailed, decoded["type"])
	assert.Equal(t, "run-9", decoded["metadata"].(map[string]any)["correlation_id"])
}
