package request

import (
	"fmt"
	"strings"

	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
)

type ReportPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type CheckReportRequest struct {
	IdentityID    string        `json:"identity_id"`
	Payload       ReportPayload `json:"payload"`
	CorrelationID string        `json:"correlation_id"`
}

func (r *CheckReportRequest) Validate() error {
	if strings.TrimSpace(r.IdentityID) == "" {
		return fmt.Errorf("identity_id is required")
	}
	return nil
}

func (r *CheckReportRequest) Event() security.ReportEvent {
	return security.ReportEvent{
		IdentityID: strings.TrimSpace(r.IdentityID),
		Payload: security.ReportPayload{
			Title:       r.Payload.Title,
			Description: r.Payload.Description,
			Category:    r.Payload.Category,
		},
		CorrelationID: r.CorrelationID,
	}
}
