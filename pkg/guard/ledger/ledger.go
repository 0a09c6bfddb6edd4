package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Window is one sliding window. A Limit of zero disables the cap for that
// window so it only counts.
type Window struct {
	Name  string
	Span  time.Duration
	Limit int
}

var DefaultWindows = []Window{
	{Name: "minute", Span: time.Minute, Limit: 10},
	{Name: "hour", Span: time.Hour, Limit: 50},
	{Name: "day", Span: 24 * time.Hour, Limit: 200},
}

type Result struct {
	Allowed    bool
	Window     string
	Limit      int
	Count      int
	RetryAfter time.Duration
}

type Ledger interface {
	Record(identity string, now time.Time)
	CheckFrequency(identity string, now time.Time) Result
	CountSince(identity string, since time.Time) int
	Counters(identity string, now time.Time) map[string]int
	Reset(identity string)
	Sweep(now time.Time) int
	ActiveIdentities() int
	TotalEvents() int
	Name() string
}

type counterWindow struct {
	// stamps[i] holds the timestamps of windows[i], oldest first.
	stamps [][]time.Time
}

type ledger struct {
	name    string
	mu      sync.Mutex
	windows []Window
	entries map[string]*counterWindow
}

// New builds a ledger whose windows are evaluated in the given order.
func New(name string, windows []Window) (Ledger, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("ledger %s: at least one window is required", name)
	}
	for _, w := range windows {
		if w.Span <= 0 {
			return nil, fmt.Errorf("ledger %s: window %s must have a positive span", name, w.Name)
		}
		if w.Limit < 0 {
			return nil, fmt.Errorf("ledger %s: window %s limit must not be negative", name, w.Name)
		}
	}
	ws := make([]Window, len(windows))
	copy(ws, windows)
	return &ledger{
		name:    name,
		windows: ws,
		entries: make(map[string]*counterWindow),
	}, nil
}

func (l *ledger) Name() string {
	return l.name
}

func (l *ledger) Record(identity string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cw, ok := l.entries[identity]
	if !ok {
		cw = &counterWindow{stamps: make([][]time.Time, len(l.windows))}
		l.entries[identity] = cw
	}
	for i, w := range l.windows {
		cw.stamps[i] = append(prune(cw.stamps[i], now.Add(-w.Span)), now)
	}
}

func (l *ledger) CheckFrequency(identity string, now time.Time) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	cw, ok := l.entries[identity]
	if !ok {
		return Result{Allowed: true}
	}
	for i, w := range l.windows {
		cw.stamps[i] = prune(cw.stamps[i], now.Add(-w.Span))
		count := len(cw.stamps[i])
		if w.Limit == 0 || count < w.Limit {
			continue
		}
		retryAfter := cw.stamps[i][0].Add(w.Span).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Result{
			Allowed:    false,
			Window:     w.Name,
			Limit:      w.Limit,
			Count:      count,
			RetryAfter: retryAfter,
		}
	}
	return Result{Allowed: true}
}

// CountSince counts events strictly after since, read from the longest window.
func (l *ledger) CountSince(identity string, since time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cw, ok := l.entries[identity]
	if !ok {
		return 0
	}
	stamps := cw.stamps[l.longest()]
	idx := sort.Search(len(stamps), func(i int) bool {
		return stamps[i].After(since)
	})
	return len(stamps) - idx
}

func (l *ledger) Counters(identity string, now time.Time) map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	counters := make(map[string]int, len(l.windows))
	cw, ok := l.entries[identity]
	for i, w := range l.windows {
		if !ok {
			counters[w.Name] = 0
			continue
		}
		cw.stamps[i] = prune(cw.stamps[i], now.Add(-w.Span))
		counters[w.Name] = len(cw.stamps[i])
	}
	return counters
}

func (l *ledger) Reset(identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, identity)
}

// Sweep drops identities whose newest event is older than the longest window
// and returns how many were removed.
func (l *ledger) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	longest := l.longest()
	cutoff := now.Add(-l.windows[longest].Span)
	removed := 0
	for identity, cw := range l.entries {
		stamps := cw.stamps[longest]
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.entries, identity)
			removed++
		}
	}
	return removed
}

func (l *ledger) ActiveIdentities() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *ledger) TotalEvents() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	longest := l.longest()
	total := 0
	for _, cw := range l.entries {
		total += len(cw.stamps[longest])
	}
	return total
}

func (l *ledger) longest() int {
	idx := 0
	for i, w := range l.windows {
		if w.Span > l.windows[idx].Span {
			idx = i
		}
	}
	return idx
}

// prune drops timestamps at or before cutoff. Timestamps are appended in order
// so the kept part is a suffix.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := sort.Search(len(stamps), func(i int) bool {
		return stamps[i].After(cutoff)
	})
	if idx == 0 {
		return stamps
	}
	kept := make([]time.Time, len(stamps)-idx)
	copy(kept, stamps[idx:])
	return kept
}
