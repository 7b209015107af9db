package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/fableguard/fableguard/internal/storage"
)

type captureStore struct {
	events []storage.TelemetryEvent
}

func (c *captureStore) AppendTelemetryEvent(_ context.Context, evt storage.TelemetryEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func TestEmitterDefaults(t *testing.T) {
	store := &captureStore{}
	emitter := NewEmitter(store)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	emitter.clock = func() time.Time { return now }

	if err := emitter.Emit(context.Background(), storage.TelemetryEvent{EventName: "action.processed"}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	if len(store.events) != 1 {
		t.Fatalf("events = %d, want 1", len(store.events))
	}
	evt := store.events[0]
	if !evt.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want clock value", evt.Timestamp)
	}
	if evt.Severity != string(SeverityInfo) {
		t.Errorf("severity = %q, want INFO default", evt.Severity)
	}
}

func TestEmitterPreservesExplicitFields(t *testing.T) {
	store := &captureStore{}
	emitter := NewEmitter(store)

	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	evt := storage.TelemetryEvent{
		EventName: "action.rejected",
		Severity:  string(SeverityWarn),
		Timestamp: stamp,
	}
	if err := emitter.Emit(context.Background(), evt); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if got := store.events[0]; !got.Timestamp.Equal(stamp) || got.Severity != string(SeverityWarn) {
		t.Errorf("event = %+v", got)
	}
}

func TestEmitterNilStore(t *testing.T) {
	var emitter *Emitter
	if err := emitter.Emit(context.Background(), storage.TelemetryEvent{EventName: "noop"}); err != nil {
		t.Fatalf("nil emitter should be a no-op, got %v", err)
	}
	if err := NewEmitter(nil).Emit(context.Background(), storage.TelemetryEvent{EventName: "noop"}); err != nil {
		t.Fatalf("nil store should be a no-op, got %v", err)
	}
}
