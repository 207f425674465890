package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, maxKeys int) (*Limiter, *fakeClock) {
	t.Helper()
	l, err := New(maxKeys)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l.now = clock.Now
	return l, clock
}

func TestAdmit_SlidingWindow(t *testing.T) {
	l, clock := newTestLimiter(t, 10)

	for i := 0; i < 3; i++ {
		d := l.Admit("create:u1", 3, time.Minute)
		assert.True(t, d.Allowed, "admission %d", i)
		clock.Advance(10 * time.Second)
	}

	d := l.Admit("create:u1", 3, time.Minute)
	assert.False(t, d.Allowed)
	// first admission at t=0, now t=30s
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	clock.Advance(30 * time.Second)
	d = l.Admit("create:u1", 3, time.Minute)
	assert.True(t, d.Allowed)
}

func TestAdmit_RejectionsAreNotRecorded(t *testing.T) {
	l, clock := newTestLimiter(t, 10)

	require.True(t, l.Admit("k", 1, time.Second).Allowed)
	for i := 0; i < 5; i++ {
		assert.False(t, l.Admit("k", 1, time.Second).Allowed)
	}

	clock.Advance(time.Second)
	assert.True(t, l.Admit("k", 1, time.Second).Allowed)
}

func TestAdmit_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, 10)

	require.True(t, l.Admit("create:u1", 1, time.Minute).Allowed)
	assert.False(t, l.Admit("create:u1", 1, time.Minute).Allowed)
	assert.True(t, l.Admit("start:u1", 1, time.Minute).Allowed)
	assert.True(t, l.Admit("create:u2", 1, time.Minute).Allowed)
}

func TestAdmit_NonPositiveLimit(t *testing.T) {
	l, _ := newTestLimiter(t, 10)

	d := l.Admit("k", 0, 5*time.Second)
	assert.False(t, d.Allowed)
	assert.Equal(t, 5*time.Second, d.RetryAfter)
}

func TestAdmit_EvictsLeastRecentlyUsedKey(t *testing.T) {
	l, _ := newTestLimiter(t, 2)

	require.True(t, l.Admit("a", 1, time.Hour).Allowed)
	require.True(t, l.Admit("b", 1, time.Hour).Allowed)
	// touch a so b becomes the eviction candidate
	require.False(t, l.Admit("a", 1, time.Hour).Allowed)
	require.True(t, l.Admit("c", 1, time.Hour).Allowed)

	assert.Equal(t, 2, l.Len())
	assert.False(t, l.Admit("a", 1, time.Hour).Allowed)
	// b was forgotten and starts over
	assert.True(t, l.Admit("b", 1, time.Hour).Allowed)
}

func TestAdmit_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(t, 100)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit("complete:u1", 10, time.Minute).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}

func TestAdmitRule(t *testing.T) {
	l, _ := newTestLimiter(t, 10)
	rule := Rule{Limit: 2, Window: time.Second}

	for i := 0; i < 2; i++ {
		assert.True(t, l.AdmitRule("k0", rule).Allowed)
	}
	assert.False(t, l.AdmitRule("k0", rule).Allowed)
}
