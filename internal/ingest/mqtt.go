package ingest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	subscribeQoS      = 1
	disconnectQuiesce = 250 // milliseconds
)

// Consumer subscribes to the device topic patterns and feeds every inbound
// message to the pipeline. Reconnect and redelivery are the broker client's
// concern; the consumer only stops receiving while the link is down.
type Consumer struct {
	client    mqtt.Client
	pipeline  *Pipeline
	namespace string
	logger    *log.Logger
}

// ConsumerConfig carries broker connection settings.
type ConsumerConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Namespace string
}

// NewConsumer constructs a consumer. Connect must be called before messages
// flow.
func NewConsumer(cfg ConsumerConfig, pipeline *Pipeline, logger *log.Logger) (*Consumer, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt consumer: empty broker url")
	}
	if cfg.Namespace == "" {
		return nil, errors.New("mqtt consumer: empty topic namespace")
	}
	if pipeline == nil {
		return nil, errors.New("mqtt consumer: nil pipeline")
	}
	if logger == nil {
		logger = log.Default()
	}

	consumer := &Consumer{
		pipeline:  pipeline,
		namespace: cfg.Namespace,
		logger:    logger,
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if strings.HasPrefix(cfg.BrokerURL, "tls://") || strings.HasPrefix(cfg.BrokerURL, "ssl://") || strings.HasPrefix(cfg.BrokerURL, "mqtts://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Printf("mqtt: connection lost: %v", err)
	})
	// Subscriptions are re-issued on every (re)connect.
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Printf("mqtt: connected to %s", cfg.BrokerURL)
		consumer.subscribe(client)
	})

	consumer.client = mqtt.NewClient(opts)
	return consumer, nil
}

// Connect establishes the broker session. Failure here is fatal to startup.
func (c *Consumer) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return errors.New("mqtt consumer: connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt consumer: connect: %w", err)
	}
	return nil
}

// Close drops the broker session after letting in-flight work quiesce.
func (c *Consumer) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Disconnect(disconnectQuiesce)
}

func (c *Consumer) subscribe(client mqtt.Client) {
	filters := map[string]byte{
		c.namespace + "/+/telemetry": subscribeQoS,
		c.namespace + "/+/alarm":     subscribeQoS,
	}
	token := client.SubscribeMultiple(filters, c.onMessage)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Printf("mqtt: subscribe failed: %v", err)
		}
	}()
}

func (c *Consumer) onMessage(_ mqtt.Client, message mqtt.Message) {
	c.pipeline.Handle(context.Background(), message.Topic(), message.Payload())
}
