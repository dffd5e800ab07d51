package lowprice

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxBatch bounds both the queue drain size and the flush trigger.
	DefaultMaxBatch = 100
	// DefaultFlushInterval is the debounce delay before a partial batch ships.
	DefaultFlushInterval = time.Second
)

// uploaderState is the explicit queue/timer state machine. One mutex owns all
// transitions, so concurrent Enqueue calls cannot lose or duplicate a flush.
type uploaderState int

const (
	stateIdle uploaderState = iota
	stateArmed
	stateFlushing
)

// Uploader buffers report-worthy observations and flushes them as a single
// batch: at-most-once, best-effort delivery. A failed flush drops its batch;
// nothing is retried or persisted across restarts.
type Uploader struct {
	client        Client
	maxBatch      int
	flushInterval time.Duration
	sendTimeout   time.Duration

	mu       sync.Mutex
	settled  *sync.Cond // broadcast when inFlight drops to zero
	queue    []Item
	state    uploaderState
	timer    *time.Timer
	inFlight int
	closed   bool
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithMaxBatch overrides the batch size bound.
func WithMaxBatch(n int) UploaderOption {
	return func(u *Uploader) {
		if n > 0 {
			u.maxBatch = n
		}
	}
}

// WithFlushInterval overrides the debounce delay.
func WithFlushInterval(d time.Duration) UploaderOption {
	return func(u *Uploader) {
		if d > 0 {
			u.flushInterval = d
		}
	}
}

// NewUploader creates an Uploader sending through client.
func NewUploader(client Client, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		client:        client,
		maxBatch:      DefaultMaxBatch,
		flushInterval: DefaultFlushInterval,
		sendTimeout:   15 * time.Second,
	}
	for _, opt := range opts {
		opt(u)
	}
	u.settled = sync.NewCond(&u.mu)
	return u
}

// Enqueue adds one item. Reaching the batch bound flushes immediately;
// otherwise a single debounce timer is armed. Never blocks on delivery.
func (u *Uploader) Enqueue(item Item) {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.queue = append(u.queue, item)

	if len(u.queue) >= u.maxBatch {
		u.startFlushLocked()
		u.mu.Unlock()
		return
	}
	if u.state == stateIdle {
		u.state = stateArmed
		u.timer = time.AfterFunc(u.flushInterval, u.timerFired)
	}
	u.mu.Unlock()
}

// Flush ships everything queued and waits for delivery to finish. Safe to
// call concurrently with Enqueue; normal operation relies on the debounce.
func (u *Uploader) Flush() {
	u.mu.Lock()
	u.drainLocked()
	u.mu.Unlock()
}

// Close flushes synchronously and rejects further enqueues.
func (u *Uploader) Close() {
	u.mu.Lock()
	u.closed = true
	u.drainLocked()
	u.mu.Unlock()
}

// drainLocked flushes until the queue is empty and no send is in flight.
// Caller holds u.mu; the condition wait releases it while sends run, so
// items enqueued mid-drain are picked up too.
func (u *Uploader) drainLocked() {
	for {
		u.startFlushLocked()
		if u.inFlight == 0 {
			return
		}
		for u.inFlight > 0 {
			u.settled.Wait()
		}
		if len(u.queue) == 0 {
			return
		}
	}
}

func (u *Uploader) timerFired() {
	u.mu.Lock()
	if u.state == stateArmed {
		u.startFlushLocked()
	}
	u.mu.Unlock()
}

// startFlushLocked drains up to maxBatch items and ships them asynchronously.
// Caller holds u.mu.
func (u *Uploader) startFlushLocked() {
	if u.timer != nil {
		u.timer.Stop()
		u.timer = nil
	}
	if len(u.queue) == 0 {
		u.state = stateIdle
		return
	}

	n := len(u.queue)
	if n > u.maxBatch {
		n = u.maxBatch
	}
	batch := make([]Item, n)
	copy(batch, u.queue[:n])
	u.queue = u.queue[n:]
	u.state = stateFlushing

	u.inFlight++
	go u.send(batch)
}

func (u *Uploader) send(batch []Item) {
	ctx, cancel := context.WithTimeout(context.Background(), u.sendTimeout)
	defer cancel()

	if err := u.client.Ingest(ctx, batch); err != nil {
		// Best effort: the batch is gone.
		zap.L().Warn("lowprice: batch upload dropped",
			zap.Int("items", len(batch)),
			zap.Error(err),
		)
	}

	u.mu.Lock()
	u.state = stateIdle
	// Items enqueued during the flush wait for the next trigger; re-arm so
	// they are not stranded.
	if len(u.queue) > 0 && !u.closed {
		u.state = stateArmed
		u.timer = time.AfterFunc(u.flushInterval, u.timerFired)
	}
	u.inFlight--
	if u.inFlight == 0 {
		u.settled.Broadcast()
	}
	u.mu.Unlock()
}
