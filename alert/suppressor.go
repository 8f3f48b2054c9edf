package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"logwarden/core"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Suppressor debounces repeated alert triggers. Allow reports whether an
// alert keyed by rule and correlation scope may fire now, recording the
// trigger when it does. Implementations must be safe for concurrent use.
//
// The in-memory implementation debounces per process; in a multi-process
// deployment each process holds its own window unless the Redis-backed
// implementation is configured.
type Suppressor interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SuppressionKey builds the debounce key for a rule trigger: the correlation
// id when the entry has one, else the source IP, else a global scope.
func SuppressionKey(ruleID int64, entry *core.LogEntry) string {
	scope := "global"
	if entry != nil {
		switch {
		case entry.CorrelationID != "":
			scope = entry.CorrelationID
		case entry.IPAddress != "":
			scope = entry.IPAddress
		}
	}
	return fmt.Sprintf("%d:%s", ruleID, scope)
}

// MemorySuppressor is the in-process Suppressor. Entries live in an expirable
// LRU bounded by size and TTL, so the cache cannot grow without limit the way
// an unbounded map would.
type MemorySuppressor struct {
	mu     sync.Mutex
	cache  *expirable.LRU[string, time.Time]
	window time.Duration
	now    func() time.Time
}

// NewMemorySuppressor creates a suppressor with the given debounce window and
// a maximum number of tracked keys.
func NewMemorySuppressor(window time.Duration, maxEntries int) *MemorySuppressor {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &MemorySuppressor{
		cache:  expirable.NewLRU[string, time.Time](maxEntries, nil, window),
		window: window,
		now:    time.Now,
	}
}

// Allow records the trigger and returns true unless the key fired within the
// debounce window. The trigger is recorded before any dispatch happens, so a
// fully-failed dispatch still consumes the window.
func (s *MemorySuppressor) Allow(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if last, ok := s.cache.Get(key); ok && now.Sub(last) < s.window {
		return false, nil
	}
	s.cache.Add(key, now)
	return true, nil
}
