package audit

import (
	"context"

	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/sirupsen/logrus"
)

const LogExporterName = "log"

type LogExporter struct {
	logger *logrus.Logger
}

func NewLogExporter(logger *logrus.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

func (e *LogExporter) Name() string {
	return LogExporterName
}

// Export logs blocks and threats at WARN, everything else at INFO.
func (e *LogExporter) Export(_ context.Context, evt security.SecurityEvent) error {
	entry := e.logger.WithFields(logrus.Fields{
		"event_id":  evt.ID,
		"type":      evt.Type,
		"namespace": evt.Namespace,
		"identity":  evt.Identity,
		"severity":  evt.Severity,
		"detail":    evt.Detail,
		"timestamp": evt.Timestamp,
	})
	switch evt.Type {
	case security.EventBlocked, security.EventThreat, security.EventManualHold:
		entry.Warn("security event")
	default:
		entry.Info("security event")
	}
	return nil
}

func (e *LogExporter) Close() {}
