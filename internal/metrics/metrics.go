package metrics

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
	"codeberg.org/mutker/smlmqttprocessor/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace       = "smlmqtt"
	shutdownTimeout = 5 * time.Second
)

type service struct {
	cfg      Config
	registry *prometheus.Registry

	linesRead      prometheus.Counter
	malformedLines *prometheus.CounterVec
	messages       prometheus.Counter
	flushes        *prometheus.CounterVec
	batchSize      prometheus.Histogram
	publishes      *prometheus.CounterVec
}

// No-op implementation
type noopCollector struct{}

func NewService(cfg Config) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If metrics are disabled, return a no-op collector
	if !cfg.Enabled {
		logger.Debug().Msg("Metrics collection disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	s := &service{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		linesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_read_total",
			Help:      "Total number of input lines read",
		}),
		malformedLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_lines_total",
			Help:      "Total number of dropped malformed lines",
		}, []string{"field"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of assembled meter readings",
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Total number of batch flushes",
		}, []string{"reason"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_messages",
			Help:      "Number of readings per flushed batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Total number of statistics publications",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{
		s.linesRead, s.malformedLines, s.messages, s.flushes, s.batchSize, s.publishes,
	} {
		if err := s.registry.Register(c); err != nil {
			return nil, errFactory.Wrap(ErrRegister, err)
		}
	}

	logger.Debug().
		Str("listen", cfg.Listen).
		Bool("enabled", cfg.Enabled).
		Msg("Metrics service initialized successfully")

	return s, nil
}

func (s *service) LineRead() {
	s.linesRead.Inc()
}

func (s *service) MalformedLine(field string) {
	s.malformedLines.WithLabelValues(field).Inc()
}

func (s *service) MessageClosed() {
	s.messages.Inc()
}

func (s *service) Flushed(reason string, messages int) {
	s.flushes.WithLabelValues(reason).Inc()
	s.batchSize.Observe(float64(messages))
}

func (s *service) Published(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.publishes.WithLabelValues(result).Inc()
}

func (s *service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics until ctx is cancelled.
func (s *service) Serve(ctx context.Context) error {
	errFactory := errors.New()

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", s.cfg.Listen).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errFactory.Wrap(ErrServe, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(ErrServeShutdown, err)
	}
	return nil
}

// No-op implementation
func (*noopCollector) LineRead() {}

func (*noopCollector) MalformedLine(_ string) {}

func (*noopCollector) MessageClosed() {}

func (*noopCollector) Flushed(_ string, _ int) {}

func (*noopCollector) Published(_ error) {}

func (*noopCollector) Handler() http.Handler {
	return nil
}

func (*noopCollector) Serve(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
