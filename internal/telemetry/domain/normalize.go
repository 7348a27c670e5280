package telemetry

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrMalformedPayload indicates a payload that did not decode as JSON.
// Such messages are dropped before any record is created.
var ErrMalformedPayload = errors.New("telemetry: malformed payload")

// Devices report ts either in seconds or milliseconds; values below this
// threshold are treated as seconds.
const millisThreshold = 1_000_000_000_000

// NormalizeTelemetry decodes a raw telemetry payload into a record.
// receivedAt is the pipeline's arrival instant and is never taken from the
// device. Known numeric fields are extracted only when they are JSON
// numbers; strings and other shapes leave the typed field nil.
func NormalizeTelemetry(payload []byte, deviceID string, receivedAt time.Time) (*TelemetryRecord, error) {
	doc, err := decodeDocument(payload)
	if err != nil {
		return nil, err
	}

	record := &TelemetryRecord{
		DeviceID:   deviceID,
		ReceivedAt: receivedAt.UTC(),
		Raw:        doc,
	}

	if fields, ok := doc.(map[string]any); ok {
		record.Temperature = numericField(fields, "temperature")
		record.Humidity = numericField(fields, "humidity")
		record.Chlorophyll = numericField(fields, "chlorophyll")
		record.DeviceReportedAt = deviceTimestamp(fields)
	}
	return record, nil
}

// NormalizeAlarm decodes a raw alarm payload into a record. Level defaults
// to "unknown" and message to the empty string when absent or null.
func NormalizeAlarm(payload []byte, deviceID string, receivedAt time.Time) (*AlarmRecord, error) {
	doc, err := decodeDocument(payload)
	if err != nil {
		return nil, err
	}

	record := &AlarmRecord{
		DeviceID:   deviceID,
		ReceivedAt: receivedAt.UTC(),
		Level:      "unknown",
		Message:    "",
		Raw:        doc,
	}

	if fields, ok := doc.(map[string]any); ok {
		if level, ok := fields["level"].(string); ok && level != "" {
			record.Level = level
		}
		if message, ok := fields["message"].(string); ok {
			record.Message = message
		}
	}
	return record, nil
}

func decodeDocument(payload []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, ErrMalformedPayload
	}
	return doc, nil
}

func numericField(fields map[string]any, key string) *float64 {
	value, ok := fields[key].(float64)
	if !ok {
		return nil
	}
	return &value
}

// deviceTimestamp interprets a numeric ts field as seconds below the
// millisecond threshold and as milliseconds at or above it.
func deviceTimestamp(fields map[string]any) *time.Time {
	value, ok := fields["ts"].(float64)
	if !ok {
		return nil
	}
	var ts time.Time
	if value < millisThreshold {
		ts = time.Unix(int64(value), 0).UTC()
	} else {
		ts = time.UnixMilli(int64(value)).UTC()
	}
	return &ts
}
