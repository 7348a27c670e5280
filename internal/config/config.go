package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries all process settings. Values come from an optional YAML
// file named by PLANTFORM_CONFIG, with environment variables taking
// precedence over the file.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	HTTPAddr    string `yaml:"http_addr"`

	MQTTBrokerURL  string `yaml:"mqtt_broker_url"`
	MQTTHost       string `yaml:"mqtt_host"`
	MQTTPort       int    `yaml:"mqtt_port"`
	MQTTUsername   string `yaml:"mqtt_username"`
	MQTTPassword   string `yaml:"mqtt_password"`
	MQTTClientID   string `yaml:"mqtt_client_id"`
	TopicNamespace string `yaml:"topic_namespace"`

	JWTSecret string `yaml:"jwt_secret"`

	AlarmWebhookURL     string        `yaml:"alarm_webhook_url"`
	AlarmNotifyTemplate string        `yaml:"alarm_notify_template"`
	AlarmNotifyTimeout  time.Duration `yaml:"-"`

	PersistTimeout time.Duration `yaml:"-"`
}

// fileDurations carries the duration settings of the YAML file as strings in
// Go duration syntax ("5s", "1m30s").
type fileDurations struct {
	AlarmNotifyTimeout string `yaml:"alarm_notify_timeout"`
	PersistTimeout     string `yaml:"persist_timeout"`
}

// Load resolves configuration from the optional YAML file and environment.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:           ":3000",
		MQTTPort:           8883,
		MQTTClientID:       "plantform-cloud",
		TopicNamespace:     "plantform",
		AlarmNotifyTimeout: 5 * time.Second,
		PersistTimeout:     10 * time.Second,
	}

	if path := os.Getenv("PLANTFORM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
		var durations fileDurations
		if err := yaml.Unmarshal(data, &durations); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if durations.AlarmNotifyTimeout != "" {
			parsed, err := time.ParseDuration(durations.AlarmNotifyTimeout)
			if err != nil {
				return cfg, fmt.Errorf("config: alarm_notify_timeout: %w", err)
			}
			cfg.AlarmNotifyTimeout = parsed
		}
		if durations.PersistTimeout != "" {
			parsed, err := time.ParseDuration(durations.PersistTimeout)
			if err != nil {
				return cfg, fmt.Errorf("config: persist_timeout: %w", err)
			}
			cfg.PersistTimeout = parsed
		}
	}

	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.MQTTBrokerURL = getenvDefault("MQTT_BROKER_URL", cfg.MQTTBrokerURL)
	cfg.MQTTHost = getenvDefault("MQTT_HOST", cfg.MQTTHost)
	cfg.MQTTPort = getenvIntDefault("MQTT_PORT", cfg.MQTTPort)
	cfg.MQTTUsername = getenvDefault("MQTT_USERNAME", cfg.MQTTUsername)
	cfg.MQTTPassword = getenvDefault("MQTT_PASSWORD", cfg.MQTTPassword)
	cfg.MQTTClientID = getenvDefault("MQTT_CLIENT_ID", cfg.MQTTClientID)
	cfg.TopicNamespace = getenvDefault("TOPIC_NAMESPACE", cfg.TopicNamespace)
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", cfg.JWTSecret)
	cfg.AlarmWebhookURL = getenvDefault("ALARM_WEBHOOK_URL", cfg.AlarmWebhookURL)
	cfg.AlarmNotifyTemplate = getenvDefault("ALARM_NOTIFY_TEMPLATE", cfg.AlarmNotifyTemplate)
	cfg.AlarmNotifyTimeout = getenvDuration("ALARM_NOTIFY_TIMEOUT", cfg.AlarmNotifyTimeout)
	cfg.PersistTimeout = getenvDuration("PERSIST_TIMEOUT", cfg.PersistTimeout)

	if cfg.MQTTBrokerURL == "" && cfg.MQTTHost != "" {
		cfg.MQTTBrokerURL = fmt.Sprintf("mqtts://%s:%d", cfg.MQTTHost, cfg.MQTTPort)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL or PG_DSN is required")
	}
	if c.MQTTBrokerURL == "" {
		return errors.New("config: MQTT_BROKER_URL or MQTT_HOST is required")
	}
	if c.TopicNamespace == "" {
		return errors.New("config: topic namespace must not be empty")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
