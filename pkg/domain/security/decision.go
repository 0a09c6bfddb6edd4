package security

import "time"

type Reason string

const (
	ReasonRateLimitMinute         Reason = "rate_limit_minute"
	ReasonRateLimitHour           Reason = "rate_limit_hour"
	ReasonRateLimitDay            Reason = "rate_limit_day"
	ReasonSameTitleRepeated       Reason = "same_title_repeated"
	ReasonSameDescriptionRepeated Reason = "same_description_repeated"
	ReasonRapidRequests           Reason = "rapid_requests"
	ReasonSameCategoryRepeated    Reason = "same_category_repeated"
	ReasonDuplicateRequest        Reason = "duplicate_request"
	ReasonIdentityBlocked         Reason = "identity_blocked"
	ReasonDependencyUnavailable   Reason = "dependency_unavailable"
	ReasonProcessingError         Reason = "processing_error"

	ReasonIPBlocked      Reason = "IP_BLOCKED"
	ReasonThreatDetected Reason = "THREAT_DETECTED"
	ReasonAnomalyBlocked Reason = "ANOMALY_BLOCKED"
	ReasonManualBlock    Reason = "manual_block"
)

var reasonMessages = map[Reason]string{
	ReasonRateLimitMinute:         "Too many reports in the last minute",
	ReasonRateLimitHour:           "Too many reports in the last hour",
	ReasonRateLimitDay:            "Too many reports in the last 24 hours",
	ReasonSameTitleRepeated:       "The same title was submitted repeatedly",
	ReasonSameDescriptionRepeated: "The same description was submitted repeatedly",
	ReasonRapidRequests:           "Reports are being submitted too quickly",
	ReasonSameCategoryRepeated:    "Too many reports in the same category",
	ReasonDuplicateRequest:        "This report was already submitted recently",
	ReasonIdentityBlocked:         "Temporarily blocked due to suspicious activity",
	ReasonDependencyUnavailable:   "Protection service temporarily unavailable, retry shortly",
	ReasonProcessingError:         "The request could not be processed",
	ReasonIPBlocked:               "Access denied",
	ReasonThreatDetected:          "Malicious request detected",
	ReasonAnomalyBlocked:          "Access denied due to anomalous activity",
	ReasonManualBlock:             "Blocked by an administrator",
}

func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return string(r)
}

// Decision is the outcome of the report-loop pipeline.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Reason     Reason        `json:"reason,omitempty"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"-"`
}

func Allow() Decision {
	return Decision{Allowed: true, Message: "ok"}
}

func Deny(reason Reason, retryAfter time.Duration) Decision {
	return Decision{
		Allowed:    false,
		Reason:     reason,
		Message:    reason.Message(),
		RetryAfter: retryAfter,
	}
}

// RetryAfterMs is what callers put on the wire.
func (d Decision) RetryAfterMs() int64 {
	return d.RetryAfter.Milliseconds()
}

// Verdict is the outcome of the intrusion pipeline. Mapping to a transport
// status code is left to the caller.
type Verdict struct {
	Allowed    bool          `json:"allowed"`
	Reason     Reason        `json:"reason_code,omitempty"`
	Message    string        `json:"message,omitempty"`
	Threats    []ThreatMatch `json:"threats,omitempty"`
	Anomalies  []Anomaly     `json:"anomalies,omitempty"`
	RetryAfter time.Duration `json:"-"`
}

func (v Verdict) HasAnomalies() bool {
	return len(v.Anomalies) > 0
}
