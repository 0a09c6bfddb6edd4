package response

import "github.com/NeuralTrust/TrustGuard/pkg/domain/security"

type DecisionResponse struct {
	Allowed       bool            `json:"allowed"`
	Reason        security.Reason `json:"reason"`
	Message       string          `json:"message"`
	RetryAfterMs  int64           `json:"retry_after_ms"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

func FromDecision(d security.Decision, correlationID string) DecisionResponse {
	return DecisionResponse{
		Allowed:       d.Allowed,
		Reason:        d.Reason,
		Message:       d.Message,
		RetryAfterMs:  d.RetryAfterMs(),
		CorrelationID: correlationID,
	}
}
