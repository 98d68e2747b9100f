package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Global logger instance
	Logger *zap.Logger

	// Metrics
	spamMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spam_messages_total",
			Help: "Total number of spam messages detected",
		},
		[]string{"reason"},
	)

	imageMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_fingerprint_matches_total",
			Help: "Total number of image fingerprint matches",
		},
		[]string{"kind"},
	)

	pipelineDegradationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_pipeline_degradations_total",
			Help: "Detection passes that could not consult persistence",
		},
		[]string{"dependency"},
	)

	messageProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_processing_duration_seconds",
			Help:    "Time spent processing messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func Init(ctx context.Context) error {
	_ = ctx

	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(spamMessagesTotal)
	prometheus.MustRegister(imageMatchesTotal)
	prometheus.MustRegister(pipelineDegradationsTotal)
	prometheus.MustRegister(messageProcessingDuration)

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	return nil
}

// MetricsServer exposes /metrics; run it under the lifecycle runtime.
type MetricsServer struct {
	server *http.Server
}

func NewMetricsServer(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{server: &http.Server{Addr: addr, Handler: mux}}
}

func (m *MetricsServer) Start(ctx context.Context) error {
	_ = ctx
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	return nil
}

func (m *MetricsServer) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.server.Shutdown(shutdownCtx)
}

// RecordSpamDetection records a spam message detection
func RecordSpamDetection(reason string) {
	spamMessagesTotal.WithLabelValues(reason).Inc()
}

// RecordImageMatch records a fingerprint match ("exact", "near", "known_spam")
func RecordImageMatch(kind string) {
	imageMatchesTotal.WithLabelValues(kind).Inc()
}

// RecordPipelineDegradation records a detection pass that lost persistence
func RecordPipelineDegradation(dependency string) {
	pipelineDegradationsTotal.WithLabelValues(dependency).Inc()
}

// StartMessageProcessing returns a function to record message processing duration
func StartMessageProcessing() func(status string) {
	start := time.Now()
	return func(status string) {
		messageProcessingDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}
