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

const (
	defaultTelemetryTable = "telemetry"
	defaultAlarmTable     = "alarms"
)

// Repository is the Postgres implementation of the append-only record
// stores. Records are inserted and read, never updated in place.
type Repository struct {
	db             *sql.DB
	telemetryTable string
	alarmTable     string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*Repository)

// WithTelemetryTable overrides the default telemetry table name.
func WithTelemetryTable(table string) RepositoryOption {
	return func(repo *Repository) {
		if table != "" {
			repo.telemetryTable = table
		}
	}
}

// WithAlarmTable overrides the default alarm table name.
func WithAlarmTable(table string) RepositoryOption {
	return func(repo *Repository) {
		if table != "" {
			repo.alarmTable = table
		}
	}
}

// NewRepository constructs a repository with default table names.
func NewRepository(db *sql.DB, opts ...RepositoryOption) *Repository {
	repo := &Repository{
		db:             db,
		telemetryTable: defaultTelemetryTable,
		alarmTable:     defaultAlarmTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// EnsureSchema creates the record tables and their (device_id, ts DESC)
// indexes when missing. Latest-by-device and windowed history reads depend
// on those indexes.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("telemetry repo: nil db")
	}
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	device_id TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	device_ts TIMESTAMPTZ,
	temperature DOUBLE PRECISION,
	humidity DOUBLE PRECISION,
	chlorophyll DOUBLE PRECISION,
	raw JSONB NOT NULL
)`, r.telemetryTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_device_ts_idx ON %s (device_id, ts DESC)`,
			r.telemetryTable, r.telemetryTable),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	device_id TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	level TEXT NOT NULL,
	message TEXT NOT NULL,
	raw JSONB NOT NULL
)`, r.alarmTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_device_ts_idx ON %s (device_id, ts DESC)`,
			r.alarmTable, r.alarmTable),
	}
	for _, statement := range statements {
		if _, err := r.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("telemetry repo: ensure schema: %w", err)
		}
	}
	return nil
}

// InsertTelemetry appends one telemetry record.
func (r *Repository) InsertTelemetry(ctx context.Context, record *telemetry.TelemetryRecord) error {
	if r == nil || r.db == nil {
		return errors.New("telemetry repo: nil db")
	}
	if record == nil || record.DeviceID == "" || record.ReceivedAt.IsZero() {
		return errors.New("telemetry repo: invalid record")
	}

	raw, err := json.Marshal(record.Raw)
	if err != nil {
		return fmt.Errorf("telemetry repo: encode raw: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (device_id, ts, device_ts, temperature, humidity, chlorophyll, raw)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, r.telemetryTable)

	_, err = r.db.ExecContext(
		ctx,
		query,
		record.DeviceID,
		record.ReceivedAt,
		nullTime(record.DeviceReportedAt),
		nullFloat(record.Temperature),
		nullFloat(record.Humidity),
		nullFloat(record.Chlorophyll),
		raw,
	)
	return err
}

// InsertAlarm appends one alarm record.
func (r *Repository) InsertAlarm(ctx context.Context, record *telemetry.AlarmRecord) error {
	if r == nil || r.db == nil {
		return errors.New("telemetry repo: nil db")
	}
	if record == nil || record.DeviceID == "" || record.ReceivedAt.IsZero() {
		return errors.New("telemetry repo: invalid record")
	}

	raw, err := json.Marshal(record.Raw)
	if err != nil {
		return fmt.Errorf("telemetry repo: encode raw: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (device_id, ts, level, message, raw)
VALUES ($1, $2, $3, $4, $5)`, r.alarmTable)

	_, err = r.db.ExecContext(
		ctx,
		query,
		record.DeviceID,
		record.ReceivedAt,
		record.Level,
		record.Message,
		raw,
	)
	return err
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
