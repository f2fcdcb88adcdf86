package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPreservesOrder(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6, 7, 8}
	out, err := Map(context.Background(), in, 3, func(_ context.Context, v int) (int, error) {
		return v * v, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49, 64}, out)
}

func TestMapReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Map(context.Background(), []int{1, 2, 3}, 1, func(_ context.Context, v int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		return v, nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestMapHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	_, err := Map(ctx, []int{1, 2, 3}, 0, func(_ context.Context, v int) (int, error) {
		calls.Add(1)
		return v, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}
