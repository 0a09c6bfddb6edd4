package audit

import (
	"context"

	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
)

// Emitter receives every SecurityEvent. Implementations must not block the
// caller.
type Emitter interface {
	Emit(evt security.SecurityEvent)
}

// Exporter delivers events to an external collaborator.
type Exporter interface {
	Name() string
	Export(ctx context.Context, evt security.SecurityEvent) error
	Close()
}

type nopEmitter struct{}

func (nopEmitter) Emit(security.SecurityEvent) {}

func NopEmitter() Emitter {
	return nopEmitter{}
}
