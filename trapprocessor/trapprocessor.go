// Package trapprocessor receives SNMP traps over UDP and drives each one
// through the notification pipeline:
//
//	datagram -> Decoder -> Classifier -> Builder -> Dispatcher
//
// Datagrams are read by a single receive loop and processed by a bounded
// WorkerPool, so a slow or failing ntfy server never blocks the socket.
// Every datagram is independent: failures are logged, counted and dropped,
// and nothing a pipeline run returns stops the listener.
//
// Basic Usage:
//
//	processor, err := trapprocessor.New(settings, trapprocessor.Pipeline{
//		Decoder:    snmptrap.NewDecoder(snmptrap.DecoderConfig{Community: "public"}),
//		Classifier: alert.NewClassifier(alert.Config{Source: "idrac-r740"}),
//		Builder:    notify.NewBuilder(notify.BuilderConfig{}),
//		Dispatcher: dispatcher,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := processor.Start(ctx); err != nil {
//		log.Fatal(err) // cannot bind the socket
//	}
//	<-ctx.Done()
//	_ = processor.Stop(context.Background())
package trapprocessor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/geekxflood/idrac2ntfy/alert"
	"github.com/geekxflood/idrac2ntfy/logging"
	"github.com/geekxflood/idrac2ntfy/metrics"
	"github.com/geekxflood/idrac2ntfy/notify"
	"github.com/geekxflood/idrac2ntfy/snmptrap"
	"github.com/google/uuid"
)

// Config is the configuration contract of the listener and worker pool.
// Zero values select the defaults below, except for the port: port 0 binds
// an ephemeral port.
type Config interface {
	GetSNMPPort() int
	GetSNMPBindAddress() string
	GetWorkerPoolSize() int
	GetWorkerQueueSize() int
	GetBufferSize() int
	GetReadTimeout() time.Duration
	GetDrainTimeout() time.Duration
}

// Defaults applied to zero Config values.
const (
	DefaultBindAddress     = "0.0.0.0"
	DefaultWorkerPoolSize  = 4
	DefaultWorkerQueueSize = 256
	DefaultBufferSize      = 65535
	DefaultReadTimeout     = time.Second
	DefaultDrainTimeout    = 10 * time.Second
)

// configImpl is a validated snapshot of a Config.
type configImpl struct {
	port            int
	bindAddress     string
	workerPoolSize  int
	workerQueueSize int
	bufferSize      int
	readTimeout     time.Duration
	drainTimeout    time.Duration
}

func newConfigImpl(cfg Config) (*configImpl, error) {
	c := &configImpl{
		port:            cfg.GetSNMPPort(),
		bindAddress:     cfg.GetSNMPBindAddress(),
		workerPoolSize:  cfg.GetWorkerPoolSize(),
		workerQueueSize: cfg.GetWorkerQueueSize(),
		bufferSize:      cfg.GetBufferSize(),
		readTimeout:     cfg.GetReadTimeout(),
		drainTimeout:    cfg.GetDrainTimeout(),
	}

	if c.bindAddress == "" {
		c.bindAddress = DefaultBindAddress
	}
	if c.workerPoolSize == 0 {
		c.workerPoolSize = DefaultWorkerPoolSize
	}
	if c.workerQueueSize == 0 {
		c.workerQueueSize = DefaultWorkerQueueSize
	}
	if c.bufferSize == 0 {
		c.bufferSize = DefaultBufferSize
	}
	if c.readTimeout == 0 {
		c.readTimeout = DefaultReadTimeout
	}
	if c.drainTimeout == 0 {
		c.drainTimeout = DefaultDrainTimeout
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return c, nil
}

func (c *configImpl) validate() error {
	switch {
	case c.port < 0 || c.port > 65535:
		return fmt.Errorf("invalid SNMP port: %d", c.port)
	case c.workerPoolSize < 1:
		return errors.New("worker pool size must be at least 1")
	case c.workerQueueSize < 1:
		return errors.New("worker queue size must be at least 1")
	case c.bufferSize < 484:
		// RFC 3417: every SNMP entity must accept 484-octet messages.
		return fmt.Errorf("buffer size %d is below the SNMP minimum of 484", c.bufferSize)
	case c.readTimeout < 0 || c.drainTimeout < 0:
		return errors.New("timeouts cannot be negative")
	}
	return nil
}

// Decoder turns a datagram into a TrapEvent.
type Decoder interface {
	Decode(raw []byte, sender *net.UDPAddr) (*snmptrap.TrapEvent, error)
}

// Classifier turns a TrapEvent into an Alert. It cannot fail.
type Classifier interface {
	Classify(ctx context.Context, event *snmptrap.TrapEvent) alert.Alert
}

// Builder renders an Alert. It cannot fail.
type Builder interface {
	Build(a alert.Alert) notify.Message
}

// Dispatcher delivers a Message.
type Dispatcher interface {
	Deliver(ctx context.Context, msg notify.Message) error
}

// Metrics receives pipeline counts. *metrics.Recorder implements it.
type Metrics interface {
	TrapReceived()
	TrapRejected(reason string)
	AlertClassified(severity string)
	NotificationResult(result string)
}

type noopMetrics struct{}

func (noopMetrics) TrapReceived()             {}
func (noopMetrics) TrapRejected(string)       {}
func (noopMetrics) AlertClassified(string)    {}
func (noopMetrics) NotificationResult(string) {}

// Pipeline holds the stages a TrapProcessor runs. Metrics and Logger are
// optional.
type Pipeline struct {
	Decoder    Decoder
	Classifier Classifier
	Builder    Builder
	Dispatcher Dispatcher
	Metrics    Metrics
	Logger     logging.Logger
}

// TrapProcessor runs the pipeline for each datagram its Listener receives.
type TrapProcessor struct {
	pipeline Pipeline
	listener *Listener
}

// New returns a TrapProcessor listening as described by config.
func New(config Config, pipeline Pipeline) (*TrapProcessor, error) {
	switch {
	case pipeline.Decoder == nil:
		return nil, errors.New("pipeline decoder cannot be nil")
	case pipeline.Classifier == nil:
		return nil, errors.New("pipeline classifier cannot be nil")
	case pipeline.Builder == nil:
		return nil, errors.New("pipeline builder cannot be nil")
	case pipeline.Dispatcher == nil:
		return nil, errors.New("pipeline dispatcher cannot be nil")
	}
	if pipeline.Metrics == nil {
		pipeline.Metrics = noopMetrics{}
	}
	if pipeline.Logger == nil {
		pipeline.Logger = logging.NewComponentLogger("processor", "pipeline")
	}

	tp := &TrapProcessor{pipeline: pipeline}

	listener, err := NewListener(config, tp, pipeline.Metrics, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}
	tp.listener = listener

	return tp, nil
}

// Start binds the socket and starts processing.
func (tp *TrapProcessor) Start(ctx context.Context) error {
	return tp.listener.Start(ctx)
}

// Stop closes the socket and drains in-flight work.
func (tp *TrapProcessor) Stop(ctx context.Context) error {
	return tp.listener.Stop(ctx)
}

// Addr returns the bound socket address, or nil before Start.
func (tp *TrapProcessor) Addr() net.Addr {
	return tp.listener.Addr()
}

// ProcessPacket runs one datagram through the pipeline. The returned error
// has already been logged and counted; it is informational.
func (tp *TrapProcessor) ProcessPacket(ctx context.Context, packet []byte, addr *net.UDPAddr) error {
	p := tp.pipeline

	ctx = logging.WithTrapID(ctx, uuid.NewString())
	if addr != nil {
		ctx = logging.WithSender(ctx, addr.String())
	}

	event, err := p.Decoder.Decode(packet, addr)
	if err != nil {
		reason := rejectReason(err)
		p.Metrics.TrapRejected(reason)
		p.Logger.WarnContext(ctx, "dropping trap",
			"reason", reason,
			"bytes", len(packet),
			"error", err)
		return fmt.Errorf("decode: %w", err)
	}

	a := p.Classifier.Classify(ctx, event)
	p.Metrics.AlertClassified(a.Severity.String())

	msg := p.Builder.Build(a)
	p.Logger.InfoContext(ctx, "forwarding alert",
		"trap_oid", a.TrapOID,
		"severity", a.Severity.String(),
		"priority", string(msg.Priority),
		"title", msg.Title)

	if err := p.Dispatcher.Deliver(ctx, msg); err != nil {
		result, status, attempts := deliveryDetails(err)
		p.Metrics.NotificationResult(result)
		p.Logger.ErrorContext(ctx, "notification dropped",
			"trap_oid", a.TrapOID,
			"result", result,
			"status", status,
			"attempts", attempts,
			"error", err)
		return fmt.Errorf("deliver: %w", err)
	}

	p.Metrics.NotificationResult("delivered")
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, snmptrap.ErrAuthenticationMismatch):
		return metrics.ReasonAuthMismatch
	case errors.Is(err, snmptrap.ErrUnsupportedVersion):
		return metrics.ReasonVersion
	case errors.Is(err, snmptrap.ErrMalformedTrap):
		return metrics.ReasonMalformed
	default:
		return metrics.ReasonUnknownDecode
	}
}

func deliveryDetails(err error) (result string, status, attempts int) {
	var derr *notify.DeliveryError
	if errors.As(err, &derr) {
		return derr.Kind.String(), derr.StatusCode, derr.Attempts
	}
	return "error", 0, 0
}
