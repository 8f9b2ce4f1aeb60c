package ratelimit

import (
	"sync"
	"time"

	"github.com/smallbiznis/matchhub/internal/clock"
)

const (
	ActionCampaignCreate = "campaign.create"
	ActionOfferCreate    = "offer.create"
)

// Limiter is the admission check used by the creation endpoints.
type Limiter interface {
	Allow(actor, action string, limit int) (bool, time.Duration)
}

type key struct {
	actor  string
	action string
}

// SlidingWindow admits at most limit calls per (actor, action) within a
// trailing window. State lives in this process only: a restart or a second
// instance starts from empty, so it throttles abuse but never guarantees
// uniqueness. Database status guards remain the only correctness boundary.
//
// Construct with NewSlidingWindow or NewReloadingSlidingWindow and call Reset
// on teardown.
type SlidingWindow struct {
	clock    clock.Clock
	settings func() (time.Duration, int)

	mu      sync.Mutex
	calls   uint64
	entries map[key][]time.Time
}

func NewSlidingWindow(clk clock.Clock, window time.Duration, sweepEvery int) *SlidingWindow {
	return NewReloadingSlidingWindow(clk, func() (time.Duration, int) { return window, sweepEvery })
}

// NewReloadingSlidingWindow reads the window and sweep interval on every
// call, so a reloaded policy applies to the next admission. Entries recorded
// under a longer window are pruned by the new one.
func NewReloadingSlidingWindow(clk clock.Clock, settings func() (window time.Duration, sweepEvery int)) *SlidingWindow {
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &SlidingWindow{
		clock:    clk,
		settings: settings,
		entries:  make(map[key][]time.Time),
	}
}

func (l *SlidingWindow) current() (time.Duration, uint64) {
	window, sweepEvery := l.settings()
	if window <= 0 {
		window = time.Hour
	}
	if sweepEvery <= 0 {
		sweepEvery = 1000
	}
	return window, uint64(sweepEvery)
}

// Allow records a call and reports whether it is admitted. When denied, the
// returned duration is the time until the oldest entry leaves the window.
func (l *SlidingWindow) Allow(actor, action string, limit int) (bool, time.Duration) {
	now := l.clock.Now()
	window, sweepEvery := l.current()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweepLocked(now, window)
	}

	k := key{actor: actor, action: action}
	stamps := prune(l.entries[k], now.Add(-window))

	if limit <= 0 {
		l.store(k, stamps)
		return false, window
	}
	if len(stamps) >= limit {
		l.entries[k] = stamps
		return false, stamps[0].Add(window).Sub(now)
	}

	l.entries[k] = append(stamps, now)
	return true, 0
}

func (l *SlidingWindow) store(k key, stamps []time.Time) {
	if len(stamps) == 0 {
		delete(l.entries, k)
		return
	}
	l.entries[k] = stamps
}

// prune drops entries at or before cutoff, reusing the backing array.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	n := copy(stamps, stamps[i:])
	return stamps[:n]
}

// sweepLocked removes keys whose newest entry is older than twice the window.
func (l *SlidingWindow) sweepLocked(now time.Time, window time.Duration) {
	cutoff := now.Add(-2 * window)
	for k, stamps := range l.entries {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.entries, k)
		}
	}
}

// Keys reports how many (actor, action) keys are tracked.
func (l *SlidingWindow) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reset drops all tracked state.
func (l *SlidingWindow) Reset() {
	l.mu.Lock()
	l.entries = make(map[key][]time.Time)
	l.calls = 0
	l.mu.Unlock()
}
