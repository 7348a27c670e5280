package eventing

import (
	"context"
	"sync"
	"time"
)

// AlarmRecorded is published after an inbound alarm message has been
// normalized. Consumers must tolerate at-least-once delivery.
type AlarmRecorded struct {
	DeviceID   string    `json:"device_id"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TelemetryRecorded is published after an inbound telemetry message has been
// normalized.
type TelemetryRecorded struct {
	DeviceID   string    `json:"device_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Bus is a lightweight in-process event bus. Handlers run synchronously in
// subscription order on the publisher's goroutine.
type Bus struct {
	mu sync.RWMutex

	alarmHandlers     []func(context.Context, AlarmRecorded) error
	telemetryHandlers []func(context.Context, TelemetryRecorded) error
}

// NewBus constructs a new bus.
func NewBus() *Bus {
	return &Bus{}
}

// SubscribeAlarmRecorded registers a handler for AlarmRecorded.
func (b *Bus) SubscribeAlarmRecorded(handler func(context.Context, AlarmRecorded) error) {
	if b == nil || handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alarmHandlers = append(b.alarmHandlers, handler)
}

// PublishAlarmRecorded publishes an AlarmRecorded event. The first handler
// error stops dispatch and is returned.
func (b *Bus) PublishAlarmRecorded(ctx context.Context, event AlarmRecorded) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	handlers := append([]func(context.Context, AlarmRecorded) error(nil), b.alarmHandlers...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// SubscribeTelemetryRecorded registers a handler for TelemetryRecorded.
func (b *Bus) SubscribeTelemetryRecorded(handler func(context.Context, TelemetryRecorded) error) {
	if b == nil || handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.telemetryHandlers = append(b.telemetryHandlers, handler)
}

// PublishTelemetryRecorded publishes a TelemetryRecorded event.
func (b *Bus) PublishTelemetryRecorded(ctx context.Context, event TelemetryRecorded) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	handlers := append([]func(context.Context, TelemetryRecorded) error(nil), b.telemetryHandlers...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
