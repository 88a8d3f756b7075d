package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_NilGrantsLocally(t *testing.T) {
	var l *Locker
	token, ok, err := l.TryAcquire(context.Background(), "maintenance", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)
	assert.NoError(t, l.Release(context.Background(), "maintenance", token))
}

func TestLocker_RejectsBadInput(t *testing.T) {
	var l *Locker
	_, _, err := l.TryAcquire(context.Background(), "", time.Minute)
	assert.Error(t, err)
	_, _, err = l.TryAcquire(context.Background(), "report", 0)
	assert.Error(t, err)
}
