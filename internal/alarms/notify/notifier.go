package notify

import (
	"context"
	"errors"
	"log"
	"time"

	"plantform-cloud/internal/eventing"
)

// Notifier forwards recorded alarms to a notification channel. Delivery is
// best effort; a failed send is logged, never retried.
type Notifier struct {
	channel Channel
	tpl     *Template
	logger  *log.Logger
	timeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithRequestTimeout bounds each channel send.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.timeout = timeout
		}
	}
}

// NewNotifier constructs a notifier.
func NewNotifier(channel Channel, tpl *Template, logger *log.Logger, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alarm notifier: nil channel")
	}
	if tpl == nil {
		return nil, errors.New("alarm notifier: nil template")
	}
	if logger == nil {
		logger = log.Default()
	}
	notifier := &Notifier{
		channel: channel,
		tpl:     tpl,
		logger:  logger,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(notifier)
	}
	return notifier, nil
}

// HandleAlarmRecorded renders and sends one alarm notification.
func (n *Notifier) HandleAlarmRecorded(ctx context.Context, event eventing.AlarmRecorded) error {
	if n == nil {
		return nil
	}
	content, err := n.tpl.Render(TemplateData{
		DeviceID:   event.DeviceID,
		Level:      event.Level,
		Message:    event.Message,
		ReceivedAt: event.OccurredAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.channel.Send(sendCtx, content); err != nil {
		n.logger.Printf("alarm notify: send failed: %v", err)
		return err
	}
	return nil
}
