package duplicate

import (
	"strings"
	"time"
	"unicode"

	domain "github.com/NeuralTrust/TrustGuard/pkg/domain/errors"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	fingerprintLength = 50
	keySeparator      = "\x00"
)

type Config struct {
	Window   time.Duration `mapstructure:"window"`
	MaxMarks int           `mapstructure:"max_marks"`
}

func DefaultConfig() Config {
	return Config{
		Window:   5 * time.Minute,
		MaxMarks: 100000,
	}
}

type Result struct {
	IsDuplicate bool
	Fingerprint string
	RetryAfter  time.Duration
}

type Guard interface {
	CheckDuplicate(identity string, payload security.ReportPayload, now time.Time) (Result, error)
	Mark(identity string, payload security.ReportPayload, now time.Time) error
	Reset(identity string)
	Sweep(now time.Time) int
	Len() int
}

type guard struct {
	window time.Duration
	marks  *lru.LRU[string, time.Time]
}

// NewGuard keeps at most MaxMarks marks. The LRU expiry only bounds memory;
// the duplicate decision is taken against the caller's clock.
func NewGuard(cfg Config) Guard {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.MaxMarks <= 0 {
		cfg.MaxMarks = DefaultConfig().MaxMarks
	}
	return &guard{
		window: cfg.Window,
		marks:  lru.NewLRU[string, time.Time](cfg.MaxMarks, nil, 24*time.Hour),
	}
}

func (g *guard) CheckDuplicate(identity string, payload security.ReportPayload, now time.Time) (Result, error) {
	fp, err := Fingerprint(payload)
	if err != nil {
		return Result{}, err
	}
	seen, ok := g.marks.Peek(markKey(identity, fp))
	if !ok {
		return Result{Fingerprint: fp}, nil
	}
	elapsed := now.Sub(seen)
	if elapsed < 0 || elapsed >= g.window {
		return Result{Fingerprint: fp}, nil
	}
	return Result{
		IsDuplicate: true,
		Fingerprint: fp,
		RetryAfter:  g.window - elapsed,
	}, nil
}

func (g *guard) Mark(identity string, payload security.ReportPayload, now time.Time) error {
	fp, err := Fingerprint(payload)
	if err != nil {
		return err
	}
	g.marks.Add(markKey(identity, fp), now)
	return nil
}

func (g *guard) Reset(identity string) {
	prefix := identity + keySeparator
	for _, key := range g.marks.Keys() {
		if strings.HasPrefix(key, prefix) {
			g.marks.Remove(key)
		}
	}
}

// Sweep removes marks that no longer suppress anything.
func (g *guard) Sweep(now time.Time) int {
	removed := 0
	for _, key := range g.marks.Keys() {
		seen, ok := g.marks.Peek(key)
		if !ok {
			continue
		}
		if now.Sub(seen) >= g.window {
			if g.marks.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

func (g *guard) Len() int {
	return g.marks.Len()
}

// Fingerprint lower-cases title and description, strips punctuation and
// symbols, and truncates the result to 50 characters.
func Fingerprint(payload security.ReportPayload) (string, error) {
	if strings.TrimSpace(payload.Title) == "" && strings.TrimSpace(payload.Description) == "" {
		return "", domain.NewMalformedInputError("payload", "needs a title or a description")
	}
	var b strings.Builder
	for _, r := range strings.ToLower(payload.Title + payload.Description) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	runes := []rune(b.String())
	if len(runes) > fingerprintLength {
		runes = runes[:fingerprintLength]
	}
	return string(runes), nil
}

func markKey(identity, fingerprint string) string {
	return identity + keySeparator + fingerprint
}
