package pattern

import (
	"strings"
	"sync"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
)

// Thresholds are inclusive of the event under analysis: a SameTitle of 3 flags
// the third identical title inside Window.
type Thresholds struct {
	Window          time.Duration `mapstructure:"window"`
	RapidWindow     time.Duration `mapstructure:"rapid_window"`
	Retention       time.Duration `mapstructure:"retention"`
	SameTitle       int           `mapstructure:"same_title"`
	SameDescription int           `mapstructure:"same_description"`
	Rapid           int           `mapstructure:"rapid"`
	SameCategory    int           `mapstructure:"same_category"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Window:          10 * time.Minute,
		RapidWindow:     30 * time.Second,
		Retention:       24 * time.Hour,
		SameTitle:       3,
		SameDescription: 2,
		Rapid:           5,
		SameCategory:    5,
	}
}

type Entry struct {
	Timestamp     time.Time
	Payload       security.ReportPayload
	CorrelationID string
	title         string
	description   string
	category      string
}

type Result struct {
	IsLoop bool
	Reason security.Reason
	Count  int
}

type Analyzer interface {
	Analyze(identity string, payload security.ReportPayload, now time.Time) Result
	Record(identity string, payload security.ReportPayload, correlationID string, now time.Time)
	Reset(identity string)
	Sweep(now time.Time) int
	ActiveIdentities() int
	Entries(identity string) int
}

type analyzer struct {
	mu         sync.Mutex
	thresholds Thresholds
	entries    map[string][]Entry
}

func NewAnalyzer(thresholds Thresholds) Analyzer {
	return &analyzer{
		thresholds: thresholds,
		entries:    make(map[string][]Entry),
	}
}

// Analyze applies the loop rules in priority order; the first rule that
// matches wins.
func (a *analyzer) Analyze(identity string, payload security.ReportPayload, now time.Time) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	title := normalize(payload.Title)
	description := normalize(payload.Description)
	category := normalize(payload.Category)

	windowStart := now.Add(-a.thresholds.Window)
	rapidStart := now.Add(-a.thresholds.RapidWindow)

	// Every rule counts the candidate itself.
	sameTitle, sameDescription, rapid, sameCategory := 1, 1, 1, 1
	for _, e := range a.entries[identity] {
		if !e.Timestamp.After(windowStart) || e.Timestamp.After(now) {
			continue
		}
		if title != "" && e.title == title {
			sameTitle++
		}
		if description != "" && e.description == description {
			sameDescription++
		}
		if e.Timestamp.After(rapidStart) {
			rapid++
		}
		if category != "" && e.category == category {
			sameCategory++
		}
	}

	switch {
	case title != "" && reached(sameTitle, a.thresholds.SameTitle):
		return Result{IsLoop: true, Reason: security.ReasonSameTitleRepeated, Count: sameTitle}
	case description != "" && reached(sameDescription, a.thresholds.SameDescription):
		return Result{IsLoop: true, Reason: security.ReasonSameDescriptionRepeated, Count: sameDescription}
	case reached(rapid, a.thresholds.Rapid):
		return Result{IsLoop: true, Reason: security.ReasonRapidRequests, Count: rapid}
	case category != "" && reached(sameCategory, a.thresholds.SameCategory):
		return Result{IsLoop: true, Reason: security.ReasonSameCategoryRepeated, Count: sameCategory}
	}
	return Result{}
}

func (a *analyzer) Record(identity string, payload security.ReportPayload, correlationID string, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := a.retain(a.entries[identity], now)
	a.entries[identity] = append(entries, Entry{
		Timestamp:     now,
		Payload:       payload,
		CorrelationID: correlationID,
		title:         normalize(payload.Title),
		description:   normalize(payload.Description),
		category:      normalize(payload.Category),
	})
}

func (a *analyzer) Reset(identity string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, identity)
}

// Sweep prunes entries past the retention and drops empty identities. It
// returns the number of entries removed.
func (a *analyzer) Sweep(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for identity, entries := range a.entries {
		kept := a.retain(entries, now)
		removed += len(entries) - len(kept)
		if len(kept) == 0 {
			delete(a.entries, identity)
			continue
		}
		a.entries[identity] = kept
	}
	return removed
}

func (a *analyzer) ActiveIdentities() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func (a *analyzer) Entries(identity string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries[identity])
}

func (a *analyzer) retain(entries []Entry, now time.Time) []Entry {
	cutoff := now.Add(-a.thresholds.Retention)
	idx := 0
	for idx < len(entries) && !entries[idx].Timestamp.After(cutoff) {
		idx++
	}
	if idx == 0 {
		return entries
	}
	kept := make([]Entry, len(entries)-idx)
	copy(kept, entries[idx:])
	return kept
}

func reached(count, threshold int) bool {
	return threshold > 0 && count >= threshold
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
