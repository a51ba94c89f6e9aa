package trapprocessor

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// Datagram buffer sizes. Most iDRAC traps fit in well under 2KB.
const (
	defaultPacketBuffer = 8192
	maxPooledBuffer     = 16384
)

// BufferPool recycles datagram buffers between the receive loop and the
// workers, so a steady trap rate does not allocate per datagram.
type BufferPool struct {
	packetBuffers sync.Pool
}

// NewBufferPool returns an empty BufferPool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		packetBuffers: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, defaultPacketBuffer)
				return &buf
			},
		},
	}
}

// Copy returns a pooled buffer holding a copy of packet.
func (bp *BufferPool) Copy(packet []byte) *[]byte {
	buf, ok := bp.packetBuffers.Get().(*[]byte)
	if !ok || cap(*buf) < len(packet) {
		b := make([]byte, 0, max(len(packet), defaultPacketBuffer))
		buf = &b
	}
	*buf = append((*buf)[:0], packet...)
	return buf
}

// Put returns a buffer to the pool. Oversized buffers are left to the GC.
func (bp *BufferPool) Put(buf *[]byte) {
	if buf == nil || cap(*buf) > maxPooledBuffer {
		return
	}
	*buf = (*buf)[:0]
	bp.packetBuffers.Put(buf)
}

// Job is one datagram waiting for a worker.
type Job struct {
	packet     *[]byte
	addr       *net.UDPAddr
	bufferPool *BufferPool
}

func (j Job) release() {
	if j.bufferPool != nil {
		j.bufferPool.Put(j.packet)
	}
}

// ErrPoolClosed is returned by Submit after Stop.
var ErrPoolClosed = errors.New("worker pool closed")

// ErrQueueFull is returned by Submit when every queue slot is taken.
var ErrQueueFull = errors.New("worker pool queue full")

// WorkerPool runs a fixed number of goroutines feeding datagrams to a
// PacketProcessor. It bounds concurrent pipeline runs, and with them the
// number of concurrent requests to ntfy.
type WorkerPool struct {
	workers   int
	processor PacketProcessor
	jobs      chan Job
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool
}

// NewWorkerPool returns a pool of size workers with a queue of queueSize
// jobs. Non-positive values fall back to 1.
func NewWorkerPool(size, queueSize int, processor PacketProcessor) (*WorkerPool, error) {
	if processor == nil {
		return nil, errors.New("processor cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		workers:   max(size, 1),
		processor: processor,
		jobs:      make(chan Job, max(queueSize, 1)),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start launches the workers. Calling Start twice is a no-op.
func (w *WorkerPool) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
}

// Submit queues a job without blocking.
func (w *WorkerPool) Submit(job Job) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrPoolClosed
	}

	select {
	case w.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop stops accepting jobs and lets the workers drain the queue for at
// most drainTimeout, or until ctx is done. Work still running after that
// sees its context cancelled. Stop returns once every worker has exited.
//
// It reports whether the queue drained in time.
func (w *WorkerPool) Stop(ctx context.Context, drainTimeout time.Duration) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return true
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()

	drained := true
	select {
	case <-done:
	case <-timer.C:
		drained = false
	case <-ctx.Done():
		drained = false
	}

	w.cancel()
	<-done

	// Anything left in the queue was abandoned.
	for job := range w.jobs {
		job.release()
	}
	return drained
}

// Pending returns the number of queued jobs.
func (w *WorkerPool) Pending() int {
	return len(w.jobs)
}

func (w *WorkerPool) worker() {
	defer w.wg.Done()

	for {
		select {
		case job, ok := <-w.jobs:
			if !ok {
				return // Channel closed
			}
			// Errors are logged and counted by the processor.
			_ = w.processor.ProcessPacket(w.ctx, *job.packet, job.addr)
			job.release()

		case <-w.ctx.Done():
			return
		}
	}
}
