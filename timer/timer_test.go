package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *TimerManager {
	m := NewTimerManager(time.Millisecond)
	t.Cleanup(m.Stop)
	return m
}

func TestTimerManager_OneShot(t *testing.T) {
	m := newTestManager(t)

	var fired atomic.Int32
	m.AddTimer(5*time.Millisecond, 0, func() { fired.Add(1) })

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 0, m.Pending())
}

func TestTimerManager_RemoveTimer(t *testing.T) {
	m := newTestManager(t)

	var fired atomic.Int32
	id := m.AddTimer(50*time.Millisecond, 0, func() { fired.Add(1) })

	assert.True(t, m.RemoveTimer(id))
	assert.False(t, m.RemoveTimer(id), "second removal finds nothing")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestTimerManager_Periodic(t *testing.T) {
	m := newTestManager(t)

	var fired atomic.Int32
	id := m.AddTimer(2*time.Millisecond, 2*time.Millisecond, func() { fired.Add(1) })

	require.Eventually(t, func() bool { return fired.Load() >= 3 }, time.Second, time.Millisecond)
	m.RemoveTimer(id)
	assert.Equal(t, 0, m.Pending())
}

func TestCountdown_TicksThenExpiresOnce(t *testing.T) {
	m := newTestManager(t)

	var mu sync.Mutex
	var ticks []int
	var expired atomic.Int32

	c := m.NewCountdown(3, 3*time.Millisecond, func(remaining int) {
		mu.Lock()
		ticks = append(ticks, remaining)
		mu.Unlock()
	}, func() { expired.Add(1) })

	require.Eventually(t, func() bool { return expired.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 1}, ticks)
	assert.Equal(t, int32(1), expired.Load())
	assert.Zero(t, c.Remaining())
	assert.False(t, c.Cancel(), "cancelling after expiry is a no-op")
	assert.Equal(t, 0, m.Pending())
}

func TestCountdown_CancelIsIdempotent(t *testing.T) {
	m := newTestManager(t)

	var expired atomic.Int32
	c := m.NewCountdown(2, 20*time.Millisecond, nil, func() { expired.Add(1) })

	assert.Equal(t, 2, c.Remaining())
	assert.True(t, c.Cancel())
	assert.False(t, c.Cancel())
	assert.Equal(t, 0, c.Remaining())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), expired.Load())
}
