package coordinator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRecommender struct {
	n atomic.Int64
}

func (r *staticRecommender) RecommendedTotalParallelism() int { return int(r.n.Load()) }

func TestAcquireExpandsCapacityToRecommendation(t *testing.T) {
	rec := &staticRecommender{}
	rec.n.Store(3)
	c := New(rec, time.Second)

	slot, err := c.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, c.Capacity())
	slot.Release()
}

func TestCapacityNeverShrinks(t *testing.T) {
	rec := &staticRecommender{}
	rec.n.Store(5)
	c := New(rec, time.Second)

	slot, err := c.Acquire(context.Background())
	require.NoError(t, err)
	slot.Release()
	assert.Equal(t, 5, c.Capacity())

	rec.n.Store(1)
	slot2, err := c.Acquire(context.Background())
	require.NoError(t, err)
	slot2.Release()
	assert.Equal(t, 5, c.Capacity(), "capacity must never shrink even if the recommendation drops")
}

func TestAcquireBlocksUntilSlotReleasedThenTimesOut(t *testing.T) {
	rec := &staticRecommender{}
	rec.n.Store(1)
	c := New(rec, 50*time.Millisecond)

	slot, err := c.Acquire(context.Background())
	require.NoError(t, err)

	_, err = c.Acquire(context.Background())
	require.Error(t, err)
	var exhausted *ExhaustedError
	assert.ErrorAs(t, err, &exhausted)

	slot.Release()
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	rec := &staticRecommender{}
	rec.n.Store(1)
	c := New(rec, time.Minute)

	slot, err := c.Acquire(context.Background())
	require.NoError(t, err)
	defer slot.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReleaseIsIdempotent(t *testing.T) {
	rec := &staticRecommender{}
	rec.n.Store(1)
	c := New(rec, time.Second)

	slot, err := c.Acquire(context.Background())
	require.NoError(t, err)
	slot.Release()
	slot.Release() // must not panic or double-credit the token channel

	assert.Equal(t, 1, c.Capacity())
}
