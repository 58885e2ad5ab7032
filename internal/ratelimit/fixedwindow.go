package ratelimit

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// clientWindow is the tracked state for one client key.
type clientWindow struct {
	key   string
	count int
	start time.Time
	elem  *list.Element // position in the recency list, nil when uncapped
}

// FixedWindow is an in-memory fixed-window limiter. A single mutex guards the
// whole table, so the lookup, comparison and update for a key happen as one
// step and concurrent callers can never push a key past its limit.
type FixedWindow struct {
	max           int
	window        time.Duration
	maxKeys       int
	sweepInterval time.Duration
	now           func() time.Time

	mu      sync.Mutex
	entries map[string]*clientWindow
	recency *list.List // front is most recently seen
	// nextExpiry is the earliest time any tracked window can expire, as of
	// the last capacity scan.
	nextExpiry time.Time
	done    chan struct{}
	closed  bool
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithClock replaces time.Now, which Allow and the background sweeper use.
func WithClock(now func() time.Time) Option {
	return func(f *FixedWindow) {
		f.now = now
	}
}

// WithSweepInterval sets how often expired windows are removed. Zero disables
// the background sweeper; callers may still call Sweep directly.
func WithSweepInterval(d time.Duration) Option {
	return func(f *FixedWindow) {
		f.sweepInterval = d
	}
}

// WithMaxKeys caps the number of tracked keys. When a new key arrives at the
// cap, expired windows are dropped first; if none has expired the least
// recently seen key is evicted. Zero means no cap.
func WithMaxKeys(n int) Option {
	return func(f *FixedWindow) {
		f.maxKeys = n
	}
}

// NewFixedWindow creates a limiter admitting maxRequests per window for each
// key. Unless disabled with WithSweepInterval(0), a goroutine sweeps expired
// windows every window length until Close is called.
func NewFixedWindow(maxRequests int, window time.Duration, opts ...Option) (*FixedWindow, error) {
	if maxRequests <= 0 {
		return nil, fmt.Errorf("max requests must be positive, got %d", maxRequests)
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %s", window)
	}

	f := &FixedWindow{
		max:           maxRequests,
		window:        window,
		sweepInterval: window,
		now:           time.Now,
		entries:       make(map[string]*clientWindow),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.maxKeys < 0 {
		return nil, fmt.Errorf("max keys cannot be negative, got %d", f.maxKeys)
	}
	if f.maxKeys > 0 {
		f.recency = list.New()
	}
	if f.sweepInterval > 0 {
		go f.sweeper()
	}
	return f, nil
}

// Allow checks key against the limiter's clock.
func (f *FixedWindow) Allow(_ context.Context, key string) (Decision, Info) {
	return f.record(key, f.now())
}

// CheckAndRecord decides whether a request for key arriving at now is
// admitted and records it if so. Rejected requests leave the count unchanged.
func (f *FixedWindow) CheckAndRecord(key string, now time.Time) Decision {
	d, _ := f.record(key, now)
	return d
}

func (f *FixedWindow) record(key string, now time.Time) (Decision, Info) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.entries[key]
	switch {
	case !ok:
		w = f.insert(key, now)
	case now.Sub(w.start) >= f.window:
		w.count = 1
		w.start = now
	case w.count >= f.max:
		f.touch(w)
		return Reject, f.info(w, now, true)
	default:
		w.count++
	}
	f.touch(w)
	return Admit, f.info(w, now, false)
}

// insert adds a fresh window, making room first when the table is at
// capacity. Caller holds mu.
func (f *FixedWindow) insert(key string, now time.Time) *clientWindow {
	if f.maxKeys > 0 && len(f.entries) >= f.maxKeys {
		f.evict(now)
	}
	w := &clientWindow{key: key, count: 1, start: now}
	if f.recency != nil {
		w.elem = f.recency.PushFront(w)
	}
	f.entries[key] = w
	return w
}

// evict drops expired windows and, only if none had expired, the least
// recently seen live key. Caller holds mu.
func (f *FixedWindow) evict(now time.Time) {
	if !now.Before(f.nextExpiry) {
		var oldest time.Time
		for e := f.recency.Back(); e != nil; {
			prev := e.Prev()
			w := e.Value.(*clientWindow)
			if now.Sub(w.start) >= f.window {
				f.remove(w)
			} else if oldest.IsZero() || w.start.Before(oldest) {
				oldest = w.start
			}
			e = prev
		}
		// windows created or reset from here on start at or after now
		if oldest.IsZero() {
			oldest = now
		}
		f.nextExpiry = oldest.Add(f.window)
		if len(f.entries) < f.maxKeys {
			return
		}
	}
	if back := f.recency.Back(); back != nil {
		f.remove(back.Value.(*clientWindow))
	}
}

func (f *FixedWindow) touch(w *clientWindow) {
	if w.elem != nil {
		f.recency.MoveToFront(w.elem)
	}
}

func (f *FixedWindow) remove(w *clientWindow) {
	if w.elem != nil {
		f.recency.Remove(w.elem)
	}
	delete(f.entries, w.key)
}

func (f *FixedWindow) info(w *clientWindow, now time.Time, rejected bool) Info {
	resetAt := w.start.Add(f.window)
	info := Info{
		Limit:     f.max,
		Remaining: max(f.max-w.count, 0),
		ResetAt:   resetAt,
	}
	if rejected {
		info.RetryAfter = max(resetAt.Sub(now), 0)
	}
	return info
}

// Sweep removes every window that has expired at now and returns how many
// were removed.
func (f *FixedWindow) Sweep(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := 0
	for _, w := range f.entries {
		if now.Sub(w.start) >= f.window {
			f.remove(w)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (f *FixedWindow) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Close stops the background sweeper. It is safe to call more than once.
func (f *FixedWindow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
}

func (f *FixedWindow) sweeper() {
	ticker := time.NewTicker(f.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			if n := f.Sweep(f.now()); n > 0 {
				slog.Debug("Swept expired rate limit windows", "removed", n)
			}
		}
	}
}
