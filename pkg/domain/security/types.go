package security

import (
	"time"
)

// Namespace separates the identities of the two guards. Block state is never
// shared across namespaces.
type Namespace string

const (
	NamespaceUser    Namespace = "user"
	NamespaceAddress Namespace = "address"
)

func (n Namespace) Valid() bool {
	return n == NamespaceUser || n == NamespaceAddress
}

type ThreatCategory string

const (
	ThreatSQLInjection        ThreatCategory = "sql_injection"
	ThreatXSS                 ThreatCategory = "xss"
	ThreatPathTraversal       ThreatCategory = "path_traversal"
	ThreatCommandInjection    ThreatCategory = "command_injection"
	ThreatDirectoryBruteforce ThreatCategory = "directory_bruteforce"
	ThreatMaliciousUpload     ThreatCategory = "malicious_upload"
)

// ThreatCategories is the fixed scan order.
var ThreatCategories = []ThreatCategory{
	ThreatSQLInjection,
	ThreatXSS,
	ThreatPathTraversal,
	ThreatCommandInjection,
	ThreatDirectoryBruteforce,
	ThreatMaliciousUpload,
}

func (c ThreatCategory) Valid() bool {
	for _, known := range ThreatCategories {
		if known == c {
			return true
		}
	}
	return false
}

type ThreatMatch struct {
	Category ThreatCategory `json:"category"`
	Severity Severity       `json:"severity"`
	Pattern  string         `json:"pattern,omitempty"`
}

type AnomalyType string

const (
	AnomalyHighRequestRate     AnomalyType = "HIGH_REQUEST_RATE"
	AnomalyHighLoginAttempts   AnomalyType = "HIGH_LOGIN_ATTEMPTS"
	AnomalyHighFailedLogins    AnomalyType = "HIGH_FAILED_LOGINS"
	AnomalySuspiciousURL       AnomalyType = "SUSPICIOUS_URL"
	AnomalySuspiciousUserAgent AnomalyType = "SUSPICIOUS_USER_AGENT"
)

type Anomaly struct {
	Type      AnomalyType `json:"type"`
	Severity  Severity    `json:"severity"`
	Metric    float64     `json:"metric"`
	Threshold float64     `json:"threshold"`
	Detail    string      `json:"detail,omitempty"`
}

func ThreatSeverities(threats []ThreatMatch) []Severity {
	out := make([]Severity, 0, len(threats))
	for _, t := range threats {
		out = append(out, t.Severity)
	}
	return out
}

func AnomalySeverities(anomalies []Anomaly) []Severity {
	out := make([]Severity, 0, len(anomalies))
	for _, a := range anomalies {
		out = append(out, a.Severity)
	}
	return out
}

type BlockEntry struct {
	Namespace     Namespace `json:"namespace"`
	Identity      string    `json:"identity"`
	Reason        string    `json:"reason"`
	BlockedAt     time.Time `json:"blocked_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Attempts      int       `json:"attempts"`
	ManualHold    bool      `json:"manual_hold"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
}

func (b BlockEntry) Duration() time.Duration {
	return b.ExpiresAt.Sub(b.BlockedAt)
}

// Remaining is zero once the cooldown has passed; the entry stays blocked until
// recovery or a manual unblock removes it.
func (b BlockEntry) Remaining(now time.Time) time.Duration {
	if !now.Before(b.ExpiresAt) {
		return 0
	}
	return b.ExpiresAt.Sub(now)
}

type ReportPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type ReportEvent struct {
	IdentityID    string        `json:"identity_id"`
	Payload       ReportPayload `json:"payload"`
	CorrelationID string        `json:"correlation_id"`
}

// RequestSnapshot is the part of an inbound HTTP request the intrusion guard inspects.
type RequestSnapshot struct {
	SourceAddress string              `json:"source_address"`
	UserAgent     string              `json:"user_agent"`
	Method        string              `json:"method"`
	URL           string              `json:"url"`
	Headers       map[string]string   `json:"headers"`
	Body          []byte              `json:"-"`
	Query         map[string][]string `json:"query"`
}

// RequestCounts are the windowed counters the anomaly detector compares against
// its thresholds.
type RequestCounts struct {
	RequestsPerMinute int
	LoginAttempts     int
	FailedLogins      int
}
