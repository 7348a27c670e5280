package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	alarmnotify "plantform-cloud/internal/alarms/notify"
	"plantform-cloud/internal/auth"
	"plantform-cloud/internal/config"
	"plantform-cloud/internal/eventing"
	"plantform-cloud/internal/ingest"
	"plantform-cloud/internal/live"
	livehttp "plantform-cloud/internal/live/interfaces/http"
	"plantform-cloud/internal/observability/metrics"
	telemetrypostgres "plantform-cloud/internal/telemetry/infrastructure/postgres"
	telemetryhttp "plantform-cloud/internal/telemetry/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	repo := telemetrypostgres.NewRepository(db)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		logger.Fatalf("schema error: %v", err)
	}
	query := telemetrypostgres.NewQuery(db)

	metrics.Init(db, logger)

	registry := live.NewRegistry(logger)

	bus := eventing.NewBus()
	if cfg.AlarmWebhookURL != "" {
		channel, err := alarmnotify.NewWebhookChannel(cfg.AlarmWebhookURL)
		if err != nil {
			logger.Fatalf("alarm webhook error: %v", err)
		}
		tpl, err := alarmnotify.NewTemplate(cfg.AlarmNotifyTemplate)
		if err != nil {
			logger.Fatalf("alarm template error: %v", err)
		}
		notifier, err := alarmnotify.NewNotifier(channel, tpl, logger,
			alarmnotify.WithRequestTimeout(cfg.AlarmNotifyTimeout))
		if err != nil {
			logger.Fatalf("alarm notifier error: %v", err)
		}
		bus.SubscribeAlarmRecorded(notifier.HandleAlarmRecorded)
	}

	pipeline, err := ingest.NewPipeline(repo, registry, logger,
		ingest.WithBus(bus),
		ingest.WithPersistTimeout(cfg.PersistTimeout))
	if err != nil {
		logger.Fatalf("pipeline error: %v", err)
	}

	consumer, err := ingest.NewConsumer(ingest.ConsumerConfig{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		Namespace: cfg.TopicNamespace,
	}, pipeline, logger)
	if err != nil {
		logger.Fatalf("mqtt consumer error: %v", err)
	}
	if err := consumer.Connect(); err != nil {
		logger.Fatalf("mqtt connect error: %v", err)
	}
	defer consumer.Close()

	devicesHandler, err := telemetryhttp.NewDevicesHandler(query, logger)
	if err != nil {
		logger.Fatalf("devices handler error: %v", err)
	}
	wsHandler, err := livehttp.NewWSHandler(registry, logger)
	if err != nil {
		logger.Fatalf("ws handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/devices/", devicesHandler)
	mux.Handle("/ws", wsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if cfg.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics", "/ws"}, nil)
		handler = auth.NewMiddleware([]byte(cfg.JWTSecret), policy).Wrap(handler)
	}
	handler = loggingMiddleware(handler, logger)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown error: %v", err)
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack keeps websocket upgrades working behind the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return hijacker.Hijack()
}
