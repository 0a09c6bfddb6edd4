package security

import "strings"

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank orders severities from LOW (1) to CRITICAL (4). Unknown values rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

func ParseSeverity(value string) (Severity, bool) {
	s := Severity(strings.ToUpper(strings.TrimSpace(value)))
	return s, s.Valid()
}

// HighestSeverity returns the most severe value in the list, or LOW when empty.
func HighestSeverity(severities ...Severity) Severity {
	highest := SeverityLow
	for _, s := range severities {
		if s.Rank() > highest.Rank() {
			highest = s
		}
	}
	return highest
}
