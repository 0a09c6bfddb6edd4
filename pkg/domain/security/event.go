package security

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBlocked    EventType = "identity_blocked"
	EventUnblocked  EventType = "identity_unblocked"
	EventManualHold EventType = "recovery_manual_hold"
	EventThreat     EventType = "threat_detected"
	EventAnomaly    EventType = "anomaly_detected"
	EventLoop       EventType = "report_loop_detected"
)

// SecurityEvent is emitted once and never retained by the guards.
type SecurityEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Namespace Namespace              `json:"namespace"`
	Identity  string                 `json:"identity"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Severity  Severity               `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
}

func NewSecurityEvent(
	eventType EventType,
	ns Namespace,
	identity string,
	severity Severity,
	detail map[string]interface{},
	now time.Time,
) SecurityEvent {
	return SecurityEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Namespace: ns,
		Identity:  identity,
		Detail:    detail,
		Severity:  severity,
		Timestamp: now,
	}
}
