package live

import (
	"encoding/json"
	"testing"
	"time"

	telemetry "plantform-cloud/internal/telemetry/domain"
)

func drain(t *testing.T, observer *Observer) Event {
	t.Helper()
	select {
	case payload := <-observer.Messages():
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return Event{}
}

func TestRegistryPublishReachesOnlySubscribedDevice(t *testing.T) {
	registry := NewRegistry(nil)

	watcherA := NewObserver()
	watcherB := NewObserver()
	registry.Subscribe("dev-a", watcherA)
	registry.Subscribe("dev-b", watcherB)

	event := NewEvent(telemetry.CategoryTelemetry, "dev-a", time.Now(), map[string]any{"temperature": 20.0})
	delivered := registry.Publish("dev-a", event)
	if delivered != 1 {
		t.Fatalf("delivered: expected 1, got %d", delivered)
	}

	got := drain(t, watcherA)
	if got.DeviceID != "dev-a" || got.Type != "telemetry" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.Data["temperature"] != 20.0 {
		t.Fatalf("data: %+v", got.Data)
	}

	select {
	case payload := <-watcherB.Messages():
		t.Fatalf("observer of dev-b received %s", payload)
	default:
	}
}

func TestRegistryUnsubscribeStopsDelivery(t *testing.T) {
	registry := NewRegistry(nil)
	observer := NewObserver()
	registry.Subscribe("dev-a", observer)

	registry.Unsubscribe("dev-a", observer)
	// Removing again is a no-op.
	registry.Unsubscribe("dev-a", observer)

	delivered := registry.Publish("dev-a", NewEvent(telemetry.CategoryAlarm, "dev-a", time.Now(), nil))
	if delivered != 0 {
		t.Fatalf("delivered after unsubscribe: expected 0, got %d", delivered)
	}
	if registry.ObserverCount("dev-a") != 0 {
		t.Fatalf("observer count: expected 0, got %d", registry.ObserverCount("dev-a"))
	}
}

func TestRegistryPublishSkipsClosedObserver(t *testing.T) {
	registry := NewRegistry(nil)
	open := NewObserver()
	closed := NewObserver()
	registry.Subscribe("dev-a", open)
	registry.Subscribe("dev-a", closed)
	closed.Close()

	delivered := registry.Publish("dev-a", NewEvent(telemetry.CategoryTelemetry, "dev-a", time.Now(), nil))
	if delivered != 1 {
		t.Fatalf("delivered: expected 1, got %d", delivered)
	}
}

func TestRegistryPublishNoSubscribersIsNoOp(t *testing.T) {
	registry := NewRegistry(nil)
	delivered := registry.Publish("dev-unknown", NewEvent(telemetry.CategoryTelemetry, "dev-unknown", time.Now(), nil))
	if delivered != 0 {
		t.Fatalf("delivered: expected 0, got %d", delivered)
	}
}

func TestObserverSendAfterCloseIsRejected(t *testing.T) {
	observer := NewObserver()
	observer.Close()
	// Close is idempotent.
	observer.Close()
	if observer.Send([]byte("payload")) {
		t.Fatal("send after close should be rejected")
	}
}

func TestObserverDropsWhenSaturated(t *testing.T) {
	observer := NewObserver()
	accepted := 0
	for i := 0; i < defaultQueueSize+5; i++ {
		if observer.Send([]byte("payload")) {
			accepted++
		}
	}
	if accepted != defaultQueueSize {
		t.Fatalf("accepted: expected %d, got %d", defaultQueueSize, accepted)
	}
}

func TestNewEventMergesReceiptTimestamp(t *testing.T) {
	receivedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	raw := map[string]any{"temperature": 21.5, "ts": float64(1700000000)}

	event := NewEvent(telemetry.CategoryTelemetry, "dev-a", receivedAt, raw)
	iso := receivedAt.Format(time.RFC3339Nano)
	if event.TS != iso {
		t.Fatalf("ts: expected %q, got %q", iso, event.TS)
	}
	// The data ts reflects receipt time, overriding the device clock.
	if event.Data["ts"] != iso {
		t.Fatalf("data ts: got %v", event.Data["ts"])
	}
	if event.Data["temperature"] != 21.5 {
		t.Fatalf("data temperature: got %v", event.Data["temperature"])
	}
	// The source document is not mutated.
	if raw["ts"] != float64(1700000000) {
		t.Fatalf("source document mutated: %v", raw["ts"])
	}
}
