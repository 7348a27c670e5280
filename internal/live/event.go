package live

import (
	"time"

	telemetry "plantform-cloud/internal/telemetry/domain"
)

// Event is the transient message pushed to connected observers. It is never
// persisted; it exists only on the fanout path.
type Event struct {
	Type     string         `json:"type"`
	DeviceID string         `json:"deviceId"`
	TS       string         `json:"ts"`
	Data     map[string]any `json:"data"`
}

// NewEvent builds a fanout event from a decoded device document. Data is the
// document's fields merged with the receipt timestamp; the ts key always
// reflects receipt time, not the device clock.
func NewEvent(category telemetry.Category, deviceID string, receivedAt time.Time, raw any) Event {
	iso := receivedAt.UTC().Format(time.RFC3339Nano)

	data := make(map[string]any)
	if fields, ok := raw.(map[string]any); ok {
		for key, value := range fields {
			data[key] = value
		}
	}
	data["ts"] = iso

	return Event{
		Type:     string(category),
		DeviceID: deviceID,
		TS:       iso,
		Data:     data,
	}
}
