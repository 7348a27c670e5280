package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	telemetry "plantform-cloud/internal/telemetry/domain"
)

const (
	defaultHistoryLimit = 500
	maxHistoryLimit     = 2000
)

// DevicesHandler serves the historical read API over the persisted stores:
//
//	GET /devices/{id}/latest
//	GET /devices/{id}/history?hours=&limit=
//	GET /devices/{id}/alarms?hours=&limit=
//	GET /devices/{id}/export?format=xlsx|pdf&hours=&limit=
type DevicesHandler struct {
	query  telemetry.HistoryQuery
	logger *log.Logger
}

// NewDevicesHandler constructs a devices handler.
func NewDevicesHandler(query telemetry.HistoryQuery, logger *log.Logger) (*DevicesHandler, error) {
	if query == nil {
		return nil, errors.New("devices handler: nil query")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &DevicesHandler{query: query, logger: logger}, nil
}

// ServeHTTP dispatches /devices/{id}/<action>.
func (h *DevicesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.query == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/devices/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	deviceID, action := parts[0], parts[1]

	switch action {
	case "latest":
		h.serveLatest(w, r, deviceID)
	case "history":
		h.serveHistory(w, r, deviceID)
	case "alarms":
		h.serveAlarms(w, r, deviceID)
	case "export":
		h.serveExport(w, r, deviceID)
	default:
		http.NotFound(w, r)
	}
}

func (h *DevicesHandler) serveLatest(w http.ResponseWriter, r *http.Request, deviceID string) {
	record, err := h.query.Latest(r.Context(), deviceID)
	if err != nil {
		h.logger.Printf("devices api: latest error: %v", err)
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	if record == nil {
		writeJSON(w, nil)
		return
	}
	writeJSON(w, toTelemetryResponse(*record))
}

func (h *DevicesHandler) serveHistory(w http.ResponseWriter, r *http.Request, deviceID string) {
	since, limit, err := parseWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := h.query.History(r.Context(), deviceID, since, limit)
	if err != nil {
		h.logger.Printf("devices api: history error: %v", err)
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}

	out := make([]telemetryResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toTelemetryResponse(record))
	}
	writeJSON(w, out)
}

func (h *DevicesHandler) serveAlarms(w http.ResponseWriter, r *http.Request, deviceID string) {
	since, limit, err := parseWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := h.query.AlarmHistory(r.Context(), deviceID, since, limit)
	if err != nil {
		h.logger.Printf("devices api: alarms error: %v", err)
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}

	out := make([]alarmResponse, 0, len(records))
	for _, record := range records {
		out = append(out, alarmResponse{
			DeviceID: record.DeviceID,
			TS:       record.ReceivedAt,
			Level:    record.Level,
			Message:  record.Message,
			Raw:      record.Raw,
		})
	}
	writeJSON(w, out)
}

func (h *DevicesHandler) serveExport(w http.ResponseWriter, r *http.Request, deviceID string) {
	since, limit, err := parseWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}
	if format != "xlsx" && format != "pdf" {
		http.Error(w, "unsupported format", http.StatusBadRequest)
		return
	}

	records, err := h.query.History(r.Context(), deviceID, since, limit)
	if err != nil {
		h.logger.Printf("devices api: export query error: %v", err)
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}

	var payload []byte
	var contentType string
	switch format {
	case "xlsx":
		payload, err = BuildHistoryXLSX(deviceID, records)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		payload, err = BuildHistoryPDF(deviceID, records)
		contentType = "application/pdf"
	}
	if err != nil {
		h.logger.Printf("devices api: export build error: %v", err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+deviceID+`-history.`+format+`"`)
	_, _ = w.Write(payload)
}

// parseWindow validates the optional hours lower bound and the result cap.
// Absent hours means no lower bound; invalid or non-positive hours is a
// client error. The limit defaults to 500 and is clamped to 2000 to protect
// the store from unbounded scans.
func parseWindow(r *http.Request) (time.Time, int, error) {
	var since time.Time

	if hoursRaw := r.URL.Query().Get("hours"); hoursRaw != "" {
		hours, err := strconv.ParseFloat(hoursRaw, 64)
		if err != nil || hours <= 0 {
			return time.Time{}, 0, errors.New("invalid hours")
		}
		since = time.Now().UTC().Add(-time.Duration(hours * float64(time.Hour)))
	}

	limit := defaultHistoryLimit
	if limitRaw := r.URL.Query().Get("limit"); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			return time.Time{}, 0, errors.New("invalid limit")
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return since, limit, nil
}

type telemetryResponse struct {
	DeviceID    string     `json:"deviceId"`
	TS          time.Time  `json:"ts"`
	DeviceTS    *time.Time `json:"deviceTs,omitempty"`
	Temperature *float64   `json:"temperature"`
	Humidity    *float64   `json:"humidity"`
	Chlorophyll *float64   `json:"chlorophyll"`
	Raw         any        `json:"raw"`
}

type alarmResponse struct {
	DeviceID string    `json:"deviceId"`
	TS       time.Time `json:"ts"`
	Level    string    `json:"level"`
	Message  string    `json:"message"`
	Raw      any       `json:"raw"`
}

func toTelemetryResponse(record telemetry.TelemetryRecord) telemetryResponse {
	return telemetryResponse{
		DeviceID:    record.DeviceID,
		TS:          record.ReceivedAt,
		DeviceTS:    record.DeviceReportedAt,
		Temperature: record.Temperature,
		Humidity:    record.Humidity,
		Chlorophyll: record.Chlorophyll,
		Raw:         record.Raw,
	}
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
