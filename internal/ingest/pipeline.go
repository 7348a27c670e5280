package ingest

import (
	"context"
	"errors"
	"log"
	"time"

	"plantform-cloud/internal/eventing"
	"plantform-cloud/internal/live"
	"plantform-cloud/internal/observability/metrics"
	telemetry "plantform-cloud/internal/telemetry/domain"
)

// RecordStore is the durable side of the pipeline.
type RecordStore interface {
	telemetry.TelemetryRepository
	telemetry.AlarmRepository
}

// EventPublisher is the live side of the pipeline.
type EventPublisher interface {
	Publish(deviceID string, event live.Event) int
}

// Pipeline routes, normalizes, persists, and fans out every inbound message.
// The persist and fanout branches are independent: a failed write never
// suppresses live delivery, and fanout never waits on the store. No fault in
// either branch escapes Handle.
type Pipeline struct {
	store    RecordStore
	registry EventPublisher
	bus      *eventing.Bus
	logger   *log.Logger

	persistTimeout time.Duration
}

// PipelineOption configures the pipeline.
type PipelineOption func(*Pipeline)

// WithBus attaches an event bus notified after each normalized message.
func WithBus(bus *eventing.Bus) PipelineOption {
	return func(p *Pipeline) {
		p.bus = bus
	}
}

// WithPersistTimeout bounds each durable write.
func WithPersistTimeout(timeout time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if timeout > 0 {
			p.persistTimeout = timeout
		}
	}
}

// NewPipeline constructs a pipeline.
func NewPipeline(store RecordStore, registry EventPublisher, logger *log.Logger, opts ...PipelineOption) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("pipeline: nil store")
	}
	if registry == nil {
		return nil, errors.New("pipeline: nil registry")
	}
	if logger == nil {
		logger = log.Default()
	}
	pipeline := &Pipeline{
		store:          store,
		registry:       registry,
		logger:         logger,
		persistTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(pipeline)
	}
	return pipeline, nil
}

// Handle processes one inbound transport message to completion. Fanout runs
// inline so per-device delivery follows receipt order (the transport client
// invokes Handle in order); persistence runs on its own goroutine so the
// store never gates delivery of this or subsequent messages.
func (p *Pipeline) Handle(ctx context.Context, topic string, payload []byte) {
	start := time.Now()

	deviceID, category, err := ParseTopic(topic)
	if err != nil {
		metrics.IncDroppedBadTopic()
		p.logger.Printf("ingest: dropped message on %q: %v", topic, err)
		return
	}

	receivedAt := time.Now().UTC()

	switch category {
	case telemetry.CategoryTelemetry:
		record, err := telemetry.NormalizeTelemetry(payload, deviceID, receivedAt)
		if err != nil {
			metrics.IncDroppedBadPayload()
			p.logger.Printf("ingest: dropped telemetry from %s: %v", deviceID, err)
			return
		}
		p.persist(category, func(ctx context.Context) error {
			return p.store.InsertTelemetry(ctx, record)
		})
		p.fanout(category, deviceID, receivedAt, record.Raw)
		p.publishTelemetryRecorded(deviceID, receivedAt)

	case telemetry.CategoryAlarm:
		record, err := telemetry.NormalizeAlarm(payload, deviceID, receivedAt)
		if err != nil {
			metrics.IncDroppedBadPayload()
			p.logger.Printf("ingest: dropped alarm from %s: %v", deviceID, err)
			return
		}
		p.persist(category, func(ctx context.Context) error {
			return p.store.InsertAlarm(ctx, record)
		})
		p.fanout(category, deviceID, receivedAt, record.Raw)
		p.publishAlarmRecorded(record)
	}

	metrics.ObserveIngest(string(category), metrics.ResultSuccess, time.Since(start))
}

// persist runs one durable write detached from the inbound message context:
// a transport disconnect must not abort a write already in flight.
func (p *Pipeline) persist(category telemetry.Category, write func(context.Context) error) {
	go func() {
		defer p.recoverBranch("persist")

		ctx, cancel := context.WithTimeout(context.Background(), p.persistTimeout)
		defer cancel()
		if err := write(ctx); err != nil {
			metrics.IncPersist(string(category), metrics.ResultError)
			p.logger.Printf("ingest: persist %s failed: %v", category, err)
			return
		}
		metrics.IncPersist(string(category), metrics.ResultSuccess)
	}()
}

func (p *Pipeline) fanout(category telemetry.Category, deviceID string, receivedAt time.Time, raw any) {
	defer p.recoverBranch("fanout")

	event := live.NewEvent(category, deviceID, receivedAt, raw)
	delivered := p.registry.Publish(deviceID, event)
	metrics.AddFanoutDelivered(string(category), delivered)
}

func (p *Pipeline) publishAlarmRecorded(record *telemetry.AlarmRecord) {
	if p.bus == nil {
		return
	}
	event := eventing.AlarmRecorded{
		DeviceID:   record.DeviceID,
		Level:      record.Level,
		Message:    record.Message,
		OccurredAt: record.ReceivedAt,
	}
	go func() {
		defer p.recoverBranch("bus")
		if err := p.bus.PublishAlarmRecorded(context.Background(), event); err != nil {
			p.logger.Printf("ingest: alarm event handler: %v", err)
		}
	}()
}

func (p *Pipeline) publishTelemetryRecorded(deviceID string, receivedAt time.Time) {
	if p.bus == nil {
		return
	}
	event := eventing.TelemetryRecorded{DeviceID: deviceID, OccurredAt: receivedAt}
	go func() {
		defer p.recoverBranch("bus")
		if err := p.bus.PublishTelemetryRecorded(context.Background(), event); err != nil {
			p.logger.Printf("ingest: telemetry event handler: %v", err)
		}
	}()
}

func (p *Pipeline) recoverBranch(branch string) {
	if r := recover(); r != nil {
		p.logger.Printf("ingest: %s branch panic: %v", branch, r)
	}
}
