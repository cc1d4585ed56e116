package kv

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryGetHonoursTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	m := NewMemory(WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "session:a", []byte("v"), time.Minute))
	got, err := m.Get(ctx, "session:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	clock.Advance(time.Minute)
	_, err = m.Get(ctx, "session:a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, m.Has("session:a"))
}

func TestMemoryIncrSetsTTLOnFirstHitOnly(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	m := NewMemory(WithClock(clock.Now))
	ctx := context.Background()

	n, err := m.Incr(ctx, "ctr", 10*time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	clock.Advance(9 * time.Second)
	n, err = m.Incr(ctx, "ctr", 10*time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// The second hit must not have extended the expiry.
	clock.Advance(time.Second)
	n, err = m.Incr(ctx, "ctr", 10*time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMemoryIncrConcurrent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Incr(ctx, "ctr", time.Minute)
		}()
	}
	wg.Wait()
	n, err := m.Incr(ctx, "ctr", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 51, n)
}

func TestMemoryFailWith(t *testing.T) {
	m := NewMemory()
	down := errors.New("connection refused")
	m.FailWith(down)

	_, err := m.Get(context.Background(), "k")
	assert.ErrorIs(t, err, down)
	assert.ErrorIs(t, m.Ping(context.Background()), down)

	m.FailWith(nil)
	assert.NoError(t, m.Ping(context.Background()))
}
