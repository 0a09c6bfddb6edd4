package audit

import (
	"sync"

	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
)

// Recorder keeps emitted events in memory. It is meant for tests.
type Recorder struct {
	mu     sync.Mutex
	events []security.SecurityEvent
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(evt security.SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *Recorder) Events() []security.SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]security.SecurityEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) OfType(t security.EventType) []security.SecurityEvent {
	var out []security.SecurityEvent
	for _, evt := range r.Events() {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}
