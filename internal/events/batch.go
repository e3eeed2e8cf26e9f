package events

import (
	"sync"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const (
	DefaultEventsPerRequest = 100
	MaxEventsPerRequest     = 5000
	DefaultRequestInterval  = 600 * time.Second
)

// batchQueue accumulates event bodies and flushes them when the batch
// reaches its size threshold, when the timer fires, or on demand. A
// failed flush puts the events back at the head of the queue so they
// ride along with the next attempt.
type batchQueue struct {
	cfg     BatchConfig
	sender  func(bodies [][]byte) error
	loggers ldlog.Loggers

	mu      sync.Mutex
	pending [][]byte

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newBatchQueue(cfg BatchConfig, sender func([][]byte) error, loggers ldlog.Loggers) *batchQueue {
	if cfg.EventsPerRequest <= 0 {
		cfg.EventsPerRequest = DefaultEventsPerRequest
	}
	if cfg.EventsPerRequest > MaxEventsPerRequest {
		cfg.EventsPerRequest = MaxEventsPerRequest
	}
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = DefaultRequestInterval
	}
	q := &batchQueue{
		cfg:     cfg,
		sender:  sender,
		loggers: loggers,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *batchQueue) add(ev event) {
	q.mu.Lock()
	q.pending = append(q.pending, ev.body)
	full := len(q.pending) >= q.cfg.EventsPerRequest
	q.mu.Unlock()
	if full {
		go q.flush("batch size reached")
	}
}

// flush sends everything pending. It reports whether a non-empty batch
// was delivered.
func (q *batchQueue) flush(reason string) bool {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return false
	}
	q.loggers.Debugf("flushing %d batched events (%s)", len(batch), reason)
	err := q.sender(batch)
	if err != nil {
		q.loggers.Errorf("batch flush of %d events failed: %s; events re-queued", len(batch), err)
		q.mu.Lock()
		q.pending = append(batch, q.pending...)
		q.mu.Unlock()
	}
	if q.cfg.FlushCallback != nil {
		q.cfg.FlushCallback(err, len(batch))
	}
	return err == nil
}

func (q *batchQueue) loop() {
	defer close(q.done)
	ticker := time.NewTicker(q.cfg.RequestInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			q.flush("interval elapsed")
		case <-q.quit:
			q.flush("shutdown")
			return
		}
	}
}

func (q *batchQueue) close() {
	q.closeOnce.Do(func() {
		close(q.quit)
		<-q.done
	})
}
