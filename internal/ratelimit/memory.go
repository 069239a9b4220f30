package ratelimit

import (
	"context"
	"sync"
	"time"
)

// maxMemoryKeys bounds the counter map before stale windows are swept.
const maxMemoryKeys = 10000

type memoryEntry struct {
	window int64
	count  int
}

// MemoryLimiter counts hits per key and second inside this process.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counters: make(map[string]*memoryEntry)}
}

// Allow counts one hit on key in the window containing now. Denied hits are not counted.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	window := now.Unix()

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.counters) >= maxMemoryKeys {
		l.sweep(window)
	}
	entry, ok := l.counters[key]
	switch {
	case !ok:
		entry = &memoryEntry{window: window}
		l.counters[key] = entry
	case entry.window != window:
		entry.window, entry.count = window, 0
	}
	if entry.count < limit {
		entry.count++
		return windowResult(int64(entry.count), limit, window), nil
	}
	return windowResult(int64(limit)+1, limit, window), nil
}

// sweep drops counters from earlier windows. Caller holds l.mu.
func (l *MemoryLimiter) sweep(window int64) {
	for key, entry := range l.counters {
		if entry.window != window {
			delete(l.counters, key)
		}
	}
}
