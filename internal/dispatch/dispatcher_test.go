package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDispatcher_RunsAndDrains(t *testing.T) {
	d := NewDispatcher(zaptest.NewLogger(t), nil, 2, 16)
	d.Start()

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Submit(context.Background(), Task{
			Name: "count",
			Run: func(context.Context) error {
				ran.Add(1)
				return nil
			},
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
	assert.Equal(t, int32(10), ran.Load())

	assert.ErrorIs(t, d.Submit(context.Background(), Task{Name: "late", Run: func(context.Context) error { return nil }}), ErrStopped)
}

func TestDispatcher_SurvivesFailuresAndPanics(t *testing.T) {
	d := NewDispatcher(zaptest.NewLogger(t), nil, 1, 4)
	d.Start()

	var after atomic.Bool
	require.NoError(t, d.Submit(context.Background(), Task{Name: "fail", Run: func(context.Context) error {
		return errors.New("boom")
	}}))
	require.NoError(t, d.Submit(context.Background(), Task{Name: "panic", Run: func(context.Context) error {
		panic("bad task")
	}}))
	require.NoError(t, d.Submit(context.Background(), Task{Name: "after", Run: func(context.Context) error {
		after.Store(true)
		return nil
	}}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
	assert.True(t, after.Load())
}

func TestDispatcher_TaskOutlivesSubmitterContext(t *testing.T) {
	d := NewDispatcher(zaptest.NewLogger(t), nil, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	var ctxAlive atomic.Value
	require.NoError(t, d.Submit(ctx, Task{Name: "ctx", Run: func(ctx context.Context) error {
		ctxAlive.Store(ctx.Err() == nil)
		return nil
	}}))
	cancel()

	d.Start()
	stopCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	require.NoError(t, d.Stop(stopCtx))
	assert.Equal(t, true, ctxAlive.Load())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := NewDispatcher(zaptest.NewLogger(t), nil, 1, 1)
	noop := func(context.Context) error { return nil }

	require.NoError(t, d.Submit(context.Background(), Task{Name: "a", Run: noop}))
	// queue holds one task and no worker is running yet
	require.NoError(t, d.Submit(context.Background(), Task{Name: "b", Run: noop}))
	assert.Len(t, d.queue, 1)
}
