package pattern_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/pattern"
	"github.com/stretchr/testify/assert"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func payload(title, description, category string) security.ReportPayload {
	return security.ReportPayload{Title: title, Description: description, Category: category}
}

func TestAnalyzer_ThirdIdenticalTitleIsLoop(t *testing.T) {
	a := pattern.NewAnalyzer(pattern.DefaultThresholds())

	for i := 0; i < 2; i++ {
		now := base.Add(time.Duration(i) * time.Minute)
		p := payload("Broken  Lamp", fmt.Sprintf("desc %d", i), fmt.Sprintf("cat-%d", i))
		res := a.Analyze("u1", p, now)
		assert.False(t, res.IsLoop)
		a.Record("u1", p, "c", now)
	}

	res := a.Analyze("u1", payload("broken lamp", "something else", "other"), base.Add(5*time.Minute))
	assert.True(t, res.IsLoop)
	assert.Equal(t, security.ReasonSameTitleRepeated, res.Reason)
	assert.Equal(t, 3, res.Count)
}

func TestAnalyzer_TitleOutsideWindowIgnored(t *testing.T) {
	a := pattern.NewAnalyzer(pattern.DefaultThresholds())
	a.Record("u1", payload("lamp", "a", "x"), "c", base)
	a.Record("u1", payload("lamp", "b", "y"), "c", base.Add(time.Minute))

	res := a.Analyze("u1", payload("lamp", "c", "z"), base.Add(11*time.Minute))
	assert.False(t, res.IsLoop)
}

func TestAnalyzer_RulePriority(t *testing.T) {
	a := pattern.NewAnalyzer(pattern.DefaultThresholds())
	a.Record("u1", payload("t1", "same description", "x"), "c", base)

	res := a.Analyze("u1", payload("t2", "Same Description", "y"), base.Add(time.Minute))
	assert.True(t, res.IsLoop)
	assert.Equal(t, security.ReasonSameDescriptionRepeated, res.Reason)
}

func TestAnalyzer_RapidRequests(t *testing.T) {
	a := pattern.NewAnalyzer(pattern.DefaultThresholds())
	for i := 0; i < 4; i++ {
		a.Record("u1", payload(fmt.Sprintf("t%d", i), fmt.Sprintf("d%d", i), fmt.Sprintf("c%d", i)), "c", base.Add(time.Duration(i)*5*time.Second))
	}
	res := a.Analyze("u1", payload("t9", "d9", "c9"), base.Add(25*time.Second))
	assert.True(t, res.IsLoop)
	assert.Equal(t, security.ReasonRapidRequests, res.Reason)
}

func TestAnalyzer_SameCategory(t *testing.T) {
	a := pattern.NewAnalyzer(pattern.DefaultThresholds())
	for i := 0; i < 4; i++ {
		a.Record("u1", payload(fmt.Sprintf("t%d", i), fmt.Sprintf("d%d", i), "spam"), "c", base.Add(time.Duration(i)*time.Minute))
	}
	res := a.Analyze("u1", payload("t9", "d9", "SPAM"), base.Add(5*time.Minute))
	assert.True(t, res.IsLoop)
	assert.Equal(t, security.ReasonSameCategoryRepeated, res.Reason)
}

func TestAnalyzer_SweepIsIdempotent(t *testing.T) {
	a := pattern.NewAnalyzer(pattern.DefaultThresholds())
	a.Record("old", payload("t", "d", "c"), "c", base)
	a.Record("new", payload("t", "d", "c"), "c", base.Add(20*time.Hour))

	now := base.Add(25 * time.Hour)
	assert.Equal(t, 1, a.Sweep(now))
	assert.Equal(t, 1, a.ActiveIdentities())
	assert.Equal(t, 0, a.Sweep(now))
	assert.Equal(t, 1, a.Entries("new"))
}
