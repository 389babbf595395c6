package xrayclient

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// shutdownDefaultTimeout bounds each Ship call made by flushBatch.
	// Shutdown itself waits for the worker only as long as its ctx allows.
	shutdownDefaultTimeout = 5 * time.Second

	// workerBatchPollInterval is the longest a single wait for the next
	// queued event blocks inside collectBatch before re-checking the
	// flush deadline.
	workerBatchPollInterval = 100 * time.Millisecond

	// errorBackoff is how long the worker sleeps after a batch fails to
	// ship, so a persistently failing endpoint doesn't spin the loop.
	errorBackoff = time.Second
)

// Transport buffers events in memory and ships them in batches on a single
// background worker goroutine. It never blocks the caller of Send and never
// panics the caller's goroutine: it is fail-open by construction, matching
// the reference SDK's asyncio Transport.
type Transport struct {
	queue         chan map[string]any
	shipper       Shipper
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	started int32

	shutdownCh chan struct{}
	doneCh     chan struct{}
	workerOnce sync.Once
}

// NewTransport constructs a Transport. shipper may be nil, in which case
// Send still buffers (and silently drops on overflow) but nothing is ever
// delivered anywhere, useful for tests that only exercise the client-side
// lifecycle.
func NewTransport(cfg *Config, shipper Shipper, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		queue:         make(chan map[string]any, cfg.BufferSize),
		shipper:       shipper,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		logger:        logger,
		shutdownCh:    make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start launches the background worker goroutine. Calling Start more than
// once has no additional effect.
func (t *Transport) Start() {
	t.workerOnce.Do(func() {
		atomic.StoreInt32(&t.started, 1)

		go t.workerLoop()
	})
}

// Send enqueues event for shipping. It never blocks: if the buffer is full,
// the event is dropped and logged, matching the system's explicit
// no-guaranteed-delivery, fail-open contract.
func (t *Transport) Send(event map[string]any) {
	if atomic.LoadInt32(&t.started) == 0 {
		t.logger.Warn("xray transport: send before start, dropping event")

		return
	}

	select {
	case t.queue <- event:
	default:
		t.logger.Warn("xray transport: buffer full, dropping event",
			slog.Int("buffer_size", cap(t.queue)))
	}
}

// workerLoop repeatedly collects a batch and ships it until Shutdown fires.
func (t *Transport) workerLoop() {
	defer close(t.doneCh)

	for {
		select {
		case <-t.shutdownCh:
			return
		default:
		}

		batch := t.collectBatch(t.shutdownCh)
		if len(batch) > 0 {
			t.flushBatch(batch)
		}
	}
}

// collectBatch gathers events off the queue until batchSize is reached or
// flushInterval elapses, whichever comes first. stop, when closed, ends
// collection early with whatever has been gathered so far.
func (t *Transport) collectBatch(stop <-chan struct{}) []map[string]any {
	deadline := time.Now().Add(t.flushInterval)
	batch := make([]map[string]any, 0, t.batchSize)

	for len(batch) < t.batchSize {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		wait := remaining
		if wait > workerBatchPollInterval {
			wait = workerBatchPollInterval
		}

		timer := time.NewTimer(wait)

		select {
		case event := <-t.queue:
			timer.Stop()

			batch = append(batch, event)
		case <-timer.C:
			// Poll interval elapsed with nothing queued; loop back and
			// re-check the overall flush deadline.
		case <-stop:
			timer.Stop()

			return batch
		}
	}

	return batch
}

// flushBatch ships batch via the configured Shipper. Failures are logged
// and the batch is discarded, this system never retries or blocks the
// producing program on a shipping failure.
func (t *Transport) flushBatch(batch []map[string]any) {
	if t.shipper == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownDefaultTimeout)
	defer cancel()

	if err := t.shipper.Ship(ctx, batch); err != nil {
		t.logger.Error("xray transport: failed to ship batch",
			slog.Int("batch_size", len(batch)),
			slog.String("error", err.Error()))
		time.Sleep(errorBackoff)
	}
}

// Shutdown stops accepting new sends, drains whatever is left in the
// buffer, makes a best-effort attempt to ship it, and returns. The ordering
// here matters: started is cleared before the queue is drained, so any
// Send racing with Shutdown sees the transport as stopped and drops its
// event instead of adding to a queue that's already being drained,
// mirroring the reference SDK's shutdown sequence.
func (t *Transport) Shutdown(ctx context.Context) error {
	atomic.StoreInt32(&t.started, 0)
	close(t.shutdownCh)

	select {
	case <-t.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	remaining := t.drainQueue()
	if len(remaining) > 0 {
		t.flushBatch(remaining)
	}

	return nil
}

// drainQueue empties whatever is left in the channel without blocking.
func (t *Transport) drainQueue() []map[string]any {
	var remaining []map[string]any

	for {
		select {
		case event := <-t.queue:
			remaining = append(remaining, event)
		default:
			return remaining
		}
	}
}
