package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	telemetry "plantform-cloud/internal/telemetry/domain"
)

type stubQuery struct {
	latest  *telemetry.TelemetryRecord
	history []telemetry.TelemetryRecord
	alarms  []telemetry.AlarmRecord
	err     error

	gotSince time.Time
	gotLimit int
}

func (s *stubQuery) Latest(_ context.Context, deviceID string) (*telemetry.TelemetryRecord, error) {
	return s.latest, s.err
}

func (s *stubQuery) History(_ context.Context, deviceID string, since time.Time, limit int) ([]telemetry.TelemetryRecord, error) {
	s.gotSince = since
	s.gotLimit = limit
	return s.history, s.err
}

func (s *stubQuery) AlarmHistory(_ context.Context, deviceID string, since time.Time, limit int) ([]telemetry.AlarmRecord, error) {
	s.gotSince = since
	s.gotLimit = limit
	return s.alarms, s.err
}

func newHandler(t *testing.T, query telemetry.HistoryQuery) *DevicesHandler {
	t.Helper()
	handler, err := NewDevicesHandler(query, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler
}

func get(handler http.Handler, target string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, target, nil))
	return recorder
}

func TestDevicesLatestEmpty(t *testing.T) {
	handler := newHandler(t, &stubQuery{})

	resp := get(handler, "/devices/dev-1/latest")
	if resp.Code != http.StatusOK {
		t.Fatalf("status: got %d", resp.Code)
	}
	if got := resp.Body.String(); got != "null\n" {
		t.Fatalf("body: expected null, got %q", got)
	}
}

func TestDevicesLatest(t *testing.T) {
	temperature := 21.5
	receivedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	handler := newHandler(t, &stubQuery{latest: &telemetry.TelemetryRecord{
		DeviceID:    "dev-1",
		ReceivedAt:  receivedAt,
		Temperature: &temperature,
		Raw:         map[string]any{"temperature": 21.5},
	}})

	resp := get(handler, "/devices/dev-1/latest")
	if resp.Code != http.StatusOK {
		t.Fatalf("status: got %d", resp.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["deviceId"] != "dev-1" {
		t.Fatalf("deviceId: got %v", body["deviceId"])
	}
	if body["temperature"] != 21.5 {
		t.Fatalf("temperature: got %v", body["temperature"])
	}
	if body["humidity"] != nil {
		t.Fatalf("humidity: expected null, got %v", body["humidity"])
	}
}

func TestDevicesHistoryWindow(t *testing.T) {
	query := &stubQuery{}
	handler := newHandler(t, query)

	resp := get(handler, "/devices/dev-1/history?hours=24&limit=100")
	if resp.Code != http.StatusOK {
		t.Fatalf("status: got %d", resp.Code)
	}
	if query.gotLimit != 100 {
		t.Fatalf("limit: expected 100, got %d", query.gotLimit)
	}
	lower := time.Now().UTC().Add(-25 * time.Hour)
	if query.gotSince.Before(lower) {
		t.Fatalf("since too old: %v", query.gotSince)
	}
	if got := resp.Body.String(); got != "[]\n" {
		t.Fatalf("body: expected empty array, got %q", got)
	}
}

func TestDevicesHistoryInvalidHours(t *testing.T) {
	handler := newHandler(t, &stubQuery{})

	for _, target := range []string{
		"/devices/dev-1/history?hours=abc",
		"/devices/dev-1/history?hours=0",
		"/devices/dev-1/history?hours=-2",
	} {
		resp := get(handler, target)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, resp.Code)
		}
	}
}

func TestDevicesHistoryInvalidLimit(t *testing.T) {
	handler := newHandler(t, &stubQuery{})

	resp := get(handler, "/devices/dev-1/history?limit=zero")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestDevicesHistoryLimitClamp(t *testing.T) {
	query := &stubQuery{}
	handler := newHandler(t, query)

	resp := get(handler, "/devices/dev-1/history?limit=50000")
	if resp.Code != http.StatusOK {
		t.Fatalf("status: got %d", resp.Code)
	}
	if query.gotLimit != maxHistoryLimit {
		t.Fatalf("limit: expected %d, got %d", maxHistoryLimit, query.gotLimit)
	}
}

func TestDevicesHistoryDefaultLimit(t *testing.T) {
	query := &stubQuery{}
	handler := newHandler(t, query)

	get(handler, "/devices/dev-1/history")
	if query.gotLimit != defaultHistoryLimit {
		t.Fatalf("limit: expected %d, got %d", defaultHistoryLimit, query.gotLimit)
	}
	if !query.gotSince.IsZero() {
		t.Fatalf("since: expected zero without hours, got %v", query.gotSince)
	}
}

func TestDevicesAlarms(t *testing.T) {
	handler := newHandler(t, &stubQuery{alarms: []telemetry.AlarmRecord{{
		DeviceID:   "dev-1",
		ReceivedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Level:      "critical",
		Message:    "low moisture",
	}}})

	resp := get(handler, "/devices/dev-1/alarms")
	if resp.Code != http.StatusOK {
		t.Fatalf("status: got %d", resp.Code)
	}

	var body []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 || body[0]["level"] != "critical" {
		t.Fatalf("body: %+v", body)
	}
}

func TestDevicesQueryError(t *testing.T) {
	handler := newHandler(t, &stubQuery{err: errors.New("store down")})

	resp := get(handler, "/devices/dev-1/history")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}

func TestDevicesExportXLSX(t *testing.T) {
	handler := newHandler(t, &stubQuery{history: []telemetry.TelemetryRecord{{
		DeviceID:   "dev-1",
		ReceivedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}}})

	resp := get(handler, "/devices/dev-1/export?format=xlsx")
	if resp.Code != http.StatusOK {
		t.Fatalf("status: got %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("content type: got %q", got)
	}
	if resp.Body.Len() == 0 {
		t.Fatal("empty export body")
	}
}

func TestDevicesExportPDF(t *testing.T) {
	handler := newHandler(t, &stubQuery{})

	resp := get(handler, "/devices/dev-1/export?format=pdf")
	if resp.Code != http.StatusOK {
		t.Fatalf("status: got %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("content type: got %q", got)
	}
}

func TestDevicesExportUnsupportedFormat(t *testing.T) {
	handler := newHandler(t, &stubQuery{})

	resp := get(handler, "/devices/dev-1/export?format=csv")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestDevicesRouting(t *testing.T) {
	handler := newHandler(t, &stubQuery{})

	if resp := get(handler, "/devices/dev-1/unknown"); resp.Code != http.StatusNotFound {
		t.Fatalf("unknown action: expected 404, got %d", resp.Code)
	}
	if resp := get(handler, "/devices//latest"); resp.Code != http.StatusNotFound {
		t.Fatalf("empty device id: expected 404, got %d", resp.Code)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/devices/dev-1/latest", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("post: expected 405, got %d", recorder.Code)
	}
}
