package trapprocessor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/geekxflood/idrac2ntfy/logging"
	"github.com/geekxflood/idrac2ntfy/metrics"
)

// PacketProcessor handles one raw datagram.
type PacketProcessor interface {
	ProcessPacket(ctx context.Context, packet []byte, addr *net.UDPAddr) error
}

// Listener owns the trap socket. It reads datagrams and hands them to a
// WorkerPool; the receive loop never waits on pipeline work.
type Listener struct {
	config     *configImpl
	processor  PacketProcessor
	workerPool *WorkerPool
	bufferPool *BufferPool
	metrics    Metrics
	logger     logging.Logger

	mu     sync.Mutex
	conn   *net.UDPConn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewListener returns a Listener for config that feeds processor.
func NewListener(config Config, processor PacketProcessor, m Metrics, logger logging.Logger) (*Listener, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if processor == nil {
		return nil, errors.New("processor cannot be nil")
	}

	cfg, err := newConfigImpl(config)
	if err != nil {
		return nil, err
	}

	workerPool, err := NewWorkerPool(cfg.workerPoolSize, cfg.workerQueueSize, processor)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	if m == nil {
		m = noopMetrics{}
	}
	if logger == nil {
		logger = logging.NewComponentLogger("listener", "udp")
	}

	return &Listener{
		config:     cfg,
		processor:  processor,
		workerPool: workerPool,
		bufferPool: NewBufferPool(),
		metrics:    m,
		logger:     logger,
	}, nil
}

// Start binds the UDP socket and starts receiving. A bind failure is
// returned and is fatal for the process; everything after that is logged.
// The receive loop stops when ctx is done or Stop is called.
func (l *Listener) Start(ctx context.Context) error {
	addr := net.JoinHostPort(l.config.bindAddress, strconv.Itoa(l.config.port))
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address %s: %w", addr, err)
	}

	l.mu.Lock()
	if l.conn != nil {
		l.mu.Unlock()
		_ = conn.Close()
		return errors.New("listener already started")
	}
	l.conn = conn
	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()

	l.workerPool.Start()

	l.wg.Add(1)
	go l.listen(loopCtx, conn)

	l.logger.Info("trap listener started",
		"address", conn.LocalAddr().String(),
		"workers", l.config.workerPoolSize,
		"queue_size", l.config.workerQueueSize)
	return nil
}

// Addr returns the bound socket address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Stop closes the socket, then drains the worker pool for at most the
// configured drain timeout. Notifications still being retried after that
// are abandoned.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	conn := l.conn
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			l.logger.Warn("failed to close trap socket", "error", err)
		}
	}
	l.wg.Wait()

	pending := l.workerPool.Pending()
	if !l.workerPool.Stop(ctx, l.config.drainTimeout) {
		l.logger.Warn("drain timeout reached, abandoning in-flight notifications",
			"drain_timeout", l.config.drainTimeout.String(),
			"queued_at_shutdown", pending)
	}
	l.logger.Info("trap listener stopped")

	return ctx.Err()
}

func (l *Listener) listen(ctx context.Context, conn *net.UDPConn) {
	defer l.wg.Done()

	buffer := make([]byte, l.config.bufferSize)

	for {
		if l.shouldStopListening(ctx) {
			return
		}

		if l.handlePacketReception(ctx, conn, buffer) {
			return // Shutdown requested
		}
	}
}

func (l *Listener) shouldStopListening(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// handlePacketReception reads one datagram and queues it. It reports true
// when the socket is gone.
func (l *Listener) handlePacketReception(ctx context.Context, conn *net.UDPConn, buffer []byte) bool {
	if err := conn.SetReadDeadline(time.Now().Add(l.config.readTimeout)); err != nil {
		return errors.Is(err, net.ErrClosed)
	}

	n, addr, err := conn.ReadFromUDP(buffer)
	if err != nil {
		switch {
		case errors.Is(err, net.ErrClosed):
			return true
		case isTimeoutError(err):
			return false // Deadline tick, check ctx again
		default:
			l.logger.Warn("failed to read datagram", "error", err)
			return false
		}
	}

	l.metrics.TrapReceived()
	if n == len(buffer) {
		l.logger.Warn("datagram may be truncated",
			"sender", addr.String(),
			"buffer_size", len(buffer))
	}

	job := Job{
		packet:     l.bufferPool.Copy(buffer[:n]),
		addr:       addr,
		bufferPool: l.bufferPool,
	}
	if err := l.workerPool.Submit(job); err != nil {
		job.release()
		l.metrics.TrapRejected(metrics.ReasonQueueFull)
		l.logger.Error("dropping trap",
			"sender", addr.String(),
			"bytes", n,
			"error", err)
	}
	return false
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
