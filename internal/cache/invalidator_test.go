package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "instructor:42:earnings", InstructorEarningsKey(42))
	assert.Equal(t, "payment:7", PaymentKey(7))
}

func TestNewInvalidator_NoClient(t *testing.T) {
	inv := NewInvalidator(nil, zap.NewNop())
	assert.IsType(t, &noopInvalidator{}, inv)
	assert.NoError(t, inv.Invalidate(context.Background(), PaymentKey(1)))
}
