package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "plantform_"

	resultSuccess = "success"
	resultError   = "error"

	dropReasonBadTopic   = "bad_topic"
	dropReasonBadPayload = "bad_payload"
)

var (
	registerOnce sync.Once

	ingestMessages *prometheus.CounterVec
	ingestDropped  *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	persistWrites *prometheus.CounterVec

	fanoutDelivered prometheus.Counter
	fanoutPublishes *prometheus.CounterVec

	liveObservers *prometheus.GaugeVec
)

// Init registers observability metrics and DB pool gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_messages_total",
				Help: "Total inbound transport messages by category and result",
			},
			[]string{"category", "result"},
		)
		ingestDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_dropped_total",
				Help: "Total dropped inbound messages by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Pipeline handling latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"category"},
		)

		persistWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "persist_writes_total",
				Help: "Total durable writes by category and result",
			},
			[]string{"category", "result"},
		)

		fanoutDelivered = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "fanout_delivered_total",
				Help: "Total events delivered to live observers",
			},
		)
		fanoutPublishes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fanout_publishes_total",
				Help: "Total fanout publishes by category",
			},
			[]string{"category"},
		)

		liveObservers = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "live_observers",
				Help: "Currently connected live observers by device",
			},
			[]string{"device"},
		)

		prometheus.MustRegister(
			ingestMessages,
			ingestDropped,
			ingestLatency,
			persistWrites,
			fanoutDelivered,
			fanoutPublishes,
			liveObservers,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records one handled message with its pipeline latency.
func ObserveIngest(category, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestMessages != nil {
		ingestMessages.WithLabelValues(category, result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(category).Observe(duration.Seconds())
	}
}

// IncDroppedBadTopic counts a message rejected by the topic router.
func IncDroppedBadTopic() {
	if ingestDropped != nil {
		ingestDropped.WithLabelValues(dropReasonBadTopic).Inc()
	}
}

// IncDroppedBadPayload counts a message rejected by the normalizer.
func IncDroppedBadPayload() {
	if ingestDropped != nil {
		ingestDropped.WithLabelValues(dropReasonBadPayload).Inc()
	}
}

// IncPersist counts one durable write attempt.
func IncPersist(category, result string) {
	if result == "" {
		result = resultSuccess
	}
	if persistWrites != nil {
		persistWrites.WithLabelValues(category, result).Inc()
	}
}

// AddFanoutDelivered counts events accepted by live observers.
func AddFanoutDelivered(category string, delivered int) {
	if fanoutPublishes != nil {
		fanoutPublishes.WithLabelValues(category).Inc()
	}
	if delivered > 0 && fanoutDelivered != nil {
		fanoutDelivered.Add(float64(delivered))
	}
}

// IncLiveObservers tracks an observer connect.
func IncLiveObservers(deviceID string) {
	if liveObservers != nil {
		liveObservers.WithLabelValues(deviceID).Inc()
	}
}

// DecLiveObservers tracks an observer disconnect.
func DecLiveObservers(deviceID string) {
	if liveObservers != nil {
		liveObservers.WithLabelValues(deviceID).Dec()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
