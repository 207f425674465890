package ratelimit

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Rule is an admission budget: at most Limit admissions per trailing Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision is the result of one admission attempt.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter is an in-process sliding-window limiter. The number of tracked keys
// is bounded; when full, the least recently used key is forgotten.
type Limiter struct {
	mu      sync.Mutex
	windows *lru.Cache[string, []time.Time]
	now     func() time.Time
}

// New creates a limiter tracking at most maxKeys keys.
func New(maxKeys int) (*Limiter, error) {
	cache, err := lru.New[string, []time.Time](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to create limiter key cache: %w", err)
	}
	return &Limiter{windows: cache, now: time.Now}, nil
}

// Admit records an admission for key if fewer than limit admissions happened
// within the trailing window. A rejected attempt is not recorded.
func (l *Limiter) Admit(key string, limit int, window time.Duration) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if limit <= 0 {
		return Decision{RetryAfter: window}
	}

	stamps, _ := l.windows.Get(key)
	stamps = prune(stamps, now.Add(-window))

	if len(stamps) >= limit {
		l.windows.Add(key, stamps)
		// the oldest admission inside the window frees the next slot
		return Decision{RetryAfter: stamps[0].Add(window).Sub(now)}
	}

	l.windows.Add(key, append(stamps, now))
	return Decision{Allowed: true}
}

// AdmitRule is Admit with the budget taken from r.
func (l *Limiter) AdmitRule(key string, r Rule) Decision {
	return l.Admit(key, r.Limit, r.Window)
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	return l.windows.Len()
}

// prune drops timestamps at or before cutoff. stamps is ordered oldest first.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append([]time.Time(nil), stamps[i:]...)
}
