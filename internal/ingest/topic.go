package ingest

import (
	"errors"
	"strings"

	telemetry "plantform-cloud/internal/telemetry/domain"
)

// ErrBadTopic indicates a topic that does not carry a device id and a known
// category suffix. Such messages are dropped without retry.
var ErrBadTopic = errors.New("ingest: bad topic")

const (
	telemetrySuffix = "/telemetry"
	alarmSuffix     = "/alarm"
)

// ParseTopic derives the device id and category from a transport topic of
// the shape <namespace>/<deviceId>/<category>[/...]. The device id is always
// the second segment; extra trailing segments are allowed, but the topic
// must end in a known category suffix.
func ParseTopic(topic string) (string, telemetry.Category, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[1] == "" {
		return "", "", ErrBadTopic
	}
	switch {
	case strings.HasSuffix(topic, telemetrySuffix):
		return parts[1], telemetry.CategoryTelemetry, nil
	case strings.HasSuffix(topic, alarmSuffix):
		return parts[1], telemetry.CategoryAlarm, nil
	}
	return "", "", ErrBadTopic
}
