package cooldown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateTryAcquire(t *testing.T) {
	gate := NewGate(100*time.Millisecond, zerolog.Nop())

	granted, remaining := gate.TryAcquire()
	assert.True(t, granted)
	assert.Zero(t, remaining)

	granted, remaining = gate.TryAcquire()
	assert.False(t, granted)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 100*time.Millisecond)
}

func TestGateRefusalDoesNotConsumeGrant(t *testing.T) {
	gate := NewGate(50*time.Millisecond, zerolog.Nop())

	granted, _ := gate.TryAcquire()
	require.True(t, granted)

	// Repeated refusals must not push the next grant further out.
	for i := 0; i < 5; i++ {
		granted, _ = gate.TryAcquire()
		assert.False(t, granted)
	}

	time.Sleep(60 * time.Millisecond)
	granted, _ = gate.TryAcquire()
	assert.True(t, granted)
}

func TestGateAcquireSpacing(t *testing.T) {
	interval := 50 * time.Millisecond
	gate := NewGate(interval, zerolog.Nop())
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, gate.Acquire(ctx))
	require.NoError(t, gate.Acquire(ctx))
	require.NoError(t, gate.Acquire(ctx))

	// Three grants require at least two full intervals.
	assert.GreaterOrEqual(t, time.Since(start), 2*interval)
}

func TestGateAcquireConcurrent(t *testing.T) {
	interval := 30 * time.Millisecond
	gate := NewGate(interval, zerolog.Nop())

	const workers = 4
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, gate.Acquire(context.Background()))
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), time.Duration(workers-1)*interval)
}

func TestGateAcquireHonorsContext(t *testing.T) {
	gate := NewGate(time.Hour, zerolog.Nop())

	granted, _ := gate.TryAcquire()
	require.True(t, granted)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := gate.Acquire(ctx)
	assert.Error(t, err)
}
