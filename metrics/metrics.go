// Package metrics exposes Prometheus counters for the trap pipeline.
//
// A Recorder owns its own registry so tests and multiple instances never
// collide on the global one. Every Recorder method is safe on a nil
// receiver, which lets components treat metrics as optional.
//
// Basic Usage:
//
//	rec := metrics.NewRecorder()
//	rec.TrapReceived()
//	go metrics.Serve(ctx, ":9162", rec, logger)
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/geekxflood/idrac2ntfy/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "idrac2ntfy"

// Rejection reasons.
const (
	ReasonMalformed     = "malformed"
	ReasonVersion       = "unsupported_version"
	ReasonAuthMismatch  = "auth_mismatch"
	ReasonQueueFull     = "queue_full"
	ReasonUnknownDecode = "decode_error"
)

// Recorder holds the pipeline counters.
type Recorder struct {
	registry *prometheus.Registry

	trapsReceived    prometheus.Counter
	trapsRejected    *prometheus.CounterVec
	alerts           *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	dispatchAttempts *prometheus.CounterVec
}

// NewRecorder returns a Recorder with its counters registered, together
// with the Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		trapsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_received_total",
			Help:      "Datagrams read from the SNMP trap socket.",
		}),
		trapsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_rejected_total",
			Help:      "Datagrams dropped before classification, by reason.",
		}, []string{"reason"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Traps classified into alerts, by severity.",
		}, []string{"severity"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification outcomes, by result.",
		}, []string{"result"}),
		dispatchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_attempts_total",
			Help:      "HTTP requests made to ntfy, by outcome.",
		}, []string{"outcome"}),
	}

	r.registry.MustRegister(
		r.trapsReceived,
		r.trapsRejected,
		r.alerts,
		r.notifications,
		r.dispatchAttempts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry the counters are registered with.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// TrapReceived counts one datagram read from the socket.
func (r *Recorder) TrapReceived() {
	if r == nil {
		return
	}
	r.trapsReceived.Inc()
}

// TrapRejected counts one dropped datagram.
func (r *Recorder) TrapRejected(reason string) {
	if r == nil {
		return
	}
	r.trapsRejected.WithLabelValues(reason).Inc()
}

// AlertClassified counts one alert by severity name.
func (r *Recorder) AlertClassified(severity string) {
	if r == nil {
		return
	}
	r.alerts.WithLabelValues(severity).Inc()
}

// NotificationResult counts the final outcome of one notification.
func (r *Recorder) NotificationResult(result string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(result).Inc()
}

// RecordAttempt counts one HTTP request to ntfy.
func (r *Recorder) RecordAttempt(outcome string) {
	if r == nil {
		return
	}
	r.dispatchAttempts.WithLabelValues(outcome).Inc()
}

// Handler returns the /metrics handler for r.
func Handler(r *Recorder) http.Handler {
	return promhttp.HandlerFor(r.Registry(), promhttp.HandlerOpts{
		ErrorLog:          promLogger{log: logging.NewComponentLogger("metrics", "prometheus")},
		EnableOpenMetrics: true,
	})
}

// Serve exposes /metrics on address until ctx is done. It returns the
// listen error, or nil after a clean shutdown.
func Serve(ctx context.Context, address string, r *Recorder, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NewComponentLogger("metrics", "http")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(r))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", address, err)
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("metrics server started", "address", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	logger.Info("metrics server stopped")
	return nil
}

// promLogger adapts a Logger to promhttp's error logger.
type promLogger struct {
	log logging.Logger
}

func (p promLogger) Println(v ...interface{}) {
	p.log.Error(fmt.Sprint(v...))
}
