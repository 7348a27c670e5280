package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	telemetry "plantform-cloud/internal/telemetry/domain"
)

// Query is the Postgres read side over the record stores.
type Query struct {
	db             *sql.DB
	telemetryTable string
	alarmTable     string
}

// QueryOption configures the query.
type QueryOption func(*Query)

// WithQueryTelemetryTable overrides the default telemetry table name.
func WithQueryTelemetryTable(table string) QueryOption {
	return func(query *Query) {
		if query != nil && table != "" {
			query.telemetryTable = table
		}
	}
}

// WithQueryAlarmTable overrides the default alarm table name.
func WithQueryAlarmTable(table string) QueryOption {
	return func(query *Query) {
		if query != nil && table != "" {
			query.alarmTable = table
		}
	}
}

// NewQuery constructs a query with default table names.
func NewQuery(db *sql.DB, opts ...QueryOption) *Query {
	query := &Query{
		db:             db,
		telemetryTable: defaultTelemetryTable,
		alarmTable:     defaultAlarmTable,
	}
	for _, opt := range opts {
		opt(query)
	}
	return query
}

// Latest returns the most recent telemetry record for a device, or nil when
// the device has none.
func (q *Query) Latest(ctx context.Context, deviceID string) (*telemetry.TelemetryRecord, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("telemetry query: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("telemetry query: empty device id")
	}

	query := fmt.Sprintf(`
SELECT device_id, ts, device_ts, temperature, humidity, chlorophyll, raw
FROM %s
WHERE device_id = $1
ORDER BY ts DESC
LIMIT 1`, q.telemetryTable)

	row := q.db.QueryRowContext(ctx, query, deviceID)
	record, err := scanTelemetry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// History returns telemetry records for a device ascending by ts. A zero
// since means no lower bound; limit must be positive.
func (q *Query) History(ctx context.Context, deviceID string, since time.Time, limit int) ([]telemetry.TelemetryRecord, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("telemetry query: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("telemetry query: empty device id")
	}
	if limit <= 0 {
		return nil, errors.New("telemetry query: invalid limit")
	}

	query := fmt.Sprintf(`
SELECT device_id, ts, device_ts, temperature, humidity, chlorophyll, raw
FROM %s
WHERE device_id = $1 AND ts >= $2
ORDER BY ts ASC
LIMIT $3`, q.telemetryTable)

	rows, err := q.db.QueryContext(ctx, query, deviceID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]telemetry.TelemetryRecord, 0, limit)
	for rows.Next() {
		record, err := scanTelemetry(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// AlarmHistory returns alarm records for a device ascending by ts.
func (q *Query) AlarmHistory(ctx context.Context, deviceID string, since time.Time, limit int) ([]telemetry.AlarmRecord, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("telemetry query: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("telemetry query: empty device id")
	}
	if limit <= 0 {
		return nil, errors.New("telemetry query: invalid limit")
	}

	query := fmt.Sprintf(`
SELECT device_id, ts, level, message, raw
FROM %s
WHERE device_id = $1 AND ts >= $2
ORDER BY ts ASC
LIMIT $3`, q.alarmTable)

	rows, err := q.db.QueryContext(ctx, query, deviceID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]telemetry.AlarmRecord, 0, limit)
	for rows.Next() {
		var record telemetry.AlarmRecord
		var raw []byte
		if err := rows.Scan(&record.DeviceID, &record.ReceivedAt, &record.Level, &record.Message, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &record.Raw); err != nil {
			return nil, fmt.Errorf("telemetry query: decode raw: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTelemetry(row rowScanner) (*telemetry.TelemetryRecord, error) {
	var record telemetry.TelemetryRecord
	var deviceTS sql.NullTime
	var temperature, humidity, chlorophyll sql.NullFloat64
	var raw []byte

	if err := row.Scan(
		&record.DeviceID,
		&record.ReceivedAt,
		&deviceTS,
		&temperature,
		&humidity,
		&chlorophyll,
		&raw,
	); err != nil {
		return nil, err
	}

	if deviceTS.Valid {
		ts := deviceTS.Time
		record.DeviceReportedAt = &ts
	}
	record.Temperature = floatPtr(temperature)
	record.Humidity = floatPtr(humidity)
	record.Chlorophyll = floatPtr(chlorophyll)
	if err := json.Unmarshal(raw, &record.Raw); err != nil {
		return nil, fmt.Errorf("telemetry query: decode raw: %w", err)
	}
	return &record, nil
}

func floatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}
