package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/updownmm/internal/domain"
	"github.com/alejandrodnm/updownmm/internal/ports"
)

const (
	recordTimeout   = 2 * time.Second
	recordQueueSize = 4096
)

// recordJob is one pending write. flushed, when set, is closed once every
// earlier job has been written.
type recordJob struct {
	kind    string
	write   func(ctx context.Context, r ports.DecisionRecorder) error
	flushed chan struct{}
}

// recordQueue writes traces, order events and fills on its own goroutine so
// a slow store never holds a market lock or delays a tick. Each write gets a
// fresh timeout, independent of the evaluation that produced it.
type recordQueue struct {
	next    ports.DecisionRecorder
	metrics ports.Metrics

	mu     sync.RWMutex
	closed bool
	jobs   chan recordJob
	done   chan struct{}
}

func newRecordQueue(next ports.DecisionRecorder, metrics ports.Metrics) *recordQueue {
	q := &recordQueue{
		next:    next,
		metrics: metrics,
		jobs:    make(chan recordJob, recordQueueSize),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *recordQueue) run() {
	defer close(q.done)
	for job := range q.jobs {
		if job.flushed != nil {
			close(job.flushed)
			continue
		}
		q.write(job)
	}
}

func (q *recordQueue) write(job recordJob) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := job.write(ctx, q.next); err != nil {
		slog.Warn("live: error saving "+job.kind, "err", err)
	}
}

// enqueue never blocks. A full queue drops the write, loudly.
func (q *recordQueue) enqueue(job recordJob) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.write(job)
		return
	}
	select {
	case q.jobs <- job:
	default:
		slog.Error("live: record queue full, write dropped", "kind", job.kind)
		q.metrics.InvariantViolation("record_dropped")
	}
}

func (q *recordQueue) decision(t domain.DecisionTrace) {
	q.enqueue(recordJob{kind: "decision", write: func(ctx context.Context, r ports.DecisionRecorder) error {
		return r.RecordDecision(ctx, t)
	}})
}

func (q *recordQueue) orderEvent(ev domain.OrderEvent) {
	q.enqueue(recordJob{kind: "order event", write: func(ctx context.Context, r ports.DecisionRecorder) error {
		return r.RecordOrderEvent(ctx, ev)
	}})
}

func (q *recordQueue) fill(f domain.Fill) {
	q.enqueue(recordJob{kind: "fill", write: func(ctx context.Context, r ports.DecisionRecorder) error {
		return r.RecordFill(ctx, f)
	}})
}

// flush waits until everything queued so far has been written.
func (q *recordQueue) flush() {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return
	}
	flushed := make(chan struct{})
	q.jobs <- recordJob{flushed: flushed}
	q.mu.RUnlock()
	<-flushed
}

// close drains the queue. Later writes go straight to the store.
func (q *recordQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	<-q.done
}
