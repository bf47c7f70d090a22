package clicks

import (
	"context"
	"sync"
	"time"

	"linkedge/internal/domain"
	"linkedge/internal/metrics"
	"linkedge/internal/repository"
	"linkedge/pkg/logger"
)

// Recorder is the fire-and-forget click pipeline: a buffered channel feeding
// a small pool of workers that write to the durable sink.
//
// Delivery is at-least-once. A failed write is retried once and then dropped
// with a log line and a metric; duplicate delivery is harmless because every
// event carries a UUID and the sink ignores conflicts. Silent loss under
// normal operation is the only failure mode we refuse.
type Recorder struct {
	sink   repository.ClickStore
	queue  chan *domain.ClickEvent
	log    *logger.Logger
	wg     sync.WaitGroup
	closed chan struct{}
}

// NewRecorder starts the worker pool.
// queueSize bounds memory under a click storm; when the queue is full new
// events are dropped immediately rather than backpressuring the redirect.
func NewRecorder(sink repository.ClickStore, queueSize, workers int, log *logger.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}

	r := &Recorder{
		sink:   sink,
		queue:  make(chan *domain.ClickEvent, queueSize),
		log:    log.WithComponent("clicks"),
		closed: make(chan struct{}),
	}

	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.worker()
	}

	return r
}

// Record enqueues a click event. It never blocks and never returns an
// error: telemetry is strictly secondary to routing, so the worst case is
// a dropped event, logged and counted.
func (r *Recorder) Record(event *domain.ClickEvent) {
	select {
	case <-r.closed:
		metrics.RecordClickDropped()
		r.log.Warn("click dropped, recorder closed", "link_id", event.LinkID)
		return
	default:
	}

	select {
	case r.queue <- event:
		metrics.ClickQueueDepth.Set(float64(len(r.queue)))
	default:
		metrics.RecordClickDropped()
		r.log.Warn("click dropped, queue full", "link_id", event.LinkID, "domain", event.Domain, "key", event.Key)
	}
}

// Close stops intake and drains the queue, bounded by ctx.
// Events still queued when the deadline hits are dropped and counted.
func (r *Recorder) Close(ctx context.Context) error {
	close(r.closed)
	close(r.queue)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for event := range r.queue {
		metrics.ClickQueueDepth.Set(float64(len(r.queue)))
		r.write(event)
	}
}

// write commits one event, retrying once on failure
func (r *Recorder) write(event *domain.ClickEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := r.sink.Insert(ctx, event)
	if err != nil {
		err = r.sink.Insert(ctx, event)
	}
	if err != nil {
		metrics.RecordClickDropped()
		r.log.Error("click write failed", "error", err, "link_id", event.LinkID, "event_id", event.ID)
		return
	}

	metrics.RecordClickRecorded()
}
