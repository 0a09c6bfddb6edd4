package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/audit"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExporter struct {
	mu     sync.Mutex
	events []security.SecurityEvent
	err    error
	closed bool
}

func (f *fakeExporter) Name() string { return "fake" }

func (f *fakeExporter) Export(_ context.Context, evt security.SecurityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.err
}

func (f *fakeExporter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func event(t security.EventType, identity string) security.SecurityEvent {
	return security.NewSecurityEvent(t, security.NamespaceAddress, identity, security.SeverityHigh, nil, time.Now())
}

func TestDispatcher_DrainsOnShutdown(t *testing.T) {
	logger, _ := test.NewNullLogger()
	exporter := &fakeExporter{}
	d := audit.NewDispatcher(logger, 100, exporter)
	d.StartWorkers(2)

	for i := 0; i < 50; i++ {
		d.Emit(event(security.EventThreat, "10.0.0.1"))
	}
	d.Shutdown()

	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	assert.Len(t, exporter.events, 50)
	assert.True(t, exporter.closed)

	// Emitting after shutdown is a no-op.
	d.Emit(event(security.EventThreat, "10.0.0.1"))
	d.Shutdown()
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	logger, hook := test.NewNullLogger()
	exporter := &fakeExporter{}
	d := audit.NewDispatcher(logger, 1, exporter)

	d.Emit(event(security.EventBlocked, "a"))
	d.Emit(event(security.EventBlocked, "b"))

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	d.StartWorkers(1)
	d.Shutdown()
	assert.Len(t, exporter.events, 1)
}

func TestDispatcher_ExporterFailureIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	exporter := &fakeExporter{err: errors.New("broker down")}
	d := audit.NewDispatcher(logger, 10, exporter)
	d.StartWorkers(1)
	d.Emit(event(security.EventAnomaly, "a"))
	d.Shutdown()

	var failed bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "exporter failed" {
			failed = true
		}
	}
	assert.True(t, failed)
}

func TestLogExporter_Levels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	exporter := audit.NewLogExporter(logger)

	require.NoError(t, exporter.Export(context.Background(), event(security.EventBlocked, "a")))
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "a", hook.LastEntry().Data["identity"])

	require.NoError(t, exporter.Export(context.Background(), event(security.EventUnblocked, "a")))
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
}

func TestRecorder(t *testing.T) {
	r := audit.NewRecorder()
	r.Emit(event(security.EventBlocked, "a"))
	r.Emit(event(security.EventUnblocked, "a"))
	assert.Len(t, r.Events(), 2)
	assert.Len(t, r.OfType(security.EventUnblocked), 1)
}
