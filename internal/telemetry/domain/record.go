package telemetry

import (
	"context"
	"time"
)

// Category distinguishes the two message classes devices publish.
type Category string

const (
	CategoryTelemetry Category = "telemetry"
	CategoryAlarm     Category = "alarm"
)

// TelemetryRecord is one normalized sensor reading written to storage.
// ReceivedAt is always assigned by the pipeline; DeviceReportedAt is only
// set when the device supplied a numeric ts field. The typed fields are nil
// when the payload omitted them or carried a non-numeric value; Raw keeps
// the decoded document verbatim so firmware schema drift never loses data.
type TelemetryRecord struct {
	DeviceID         string
	ReceivedAt       time.Time
	DeviceReportedAt *time.Time

	Temperature *float64
	Humidity    *float64
	Chlorophyll *float64

	Raw any
}

// AlarmRecord is one normalized alarm event written to storage.
type AlarmRecord struct {
	DeviceID   string
	ReceivedAt time.Time
	Level      string
	Message    string

	Raw any
}

// TelemetryRepository appends telemetry records.
type TelemetryRepository interface {
	InsertTelemetry(ctx context.Context, record *TelemetryRecord) error
}

// AlarmRepository appends alarm records.
type AlarmRepository interface {
	InsertAlarm(ctx context.Context, record *AlarmRecord) error
}

// HistoryQuery loads persisted records for the read API.
type HistoryQuery interface {
	Latest(ctx context.Context, deviceID string) (*TelemetryRecord, error)
	History(ctx context.Context, deviceID string, since time.Time, limit int) ([]TelemetryRecord, error)
	AlarmHistory(ctx context.Context, deviceID string, since time.Time, limit int) ([]AlarmRecord, error)
}
