package gateway

import (
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/obs"
	"main/internal/shm"
	"main/pkg/exception"
)

const (
	submitQueueDepth = 4096

	// Bounded retry when the event ring is full: the strategy gets half a
	// second to drain before the condition is treated as fatal.
	publishRetries  = 500
	publishRetryGap = time.Millisecond
)

// EventWriter serializes all order-event producers onto the event ring.
// REST workers and the user-stream reader submit here; a single goroutine
// publishes, so the ring keeps exactly one producer.
type EventWriter struct {
	ring    *shm.EventRing
	queue   chan shm.OrderEventFrame
	metrics *obs.Metrics
	onFatal func(error)
	closed  atomic.Bool
}

// NewEventWriter builds the writer. onFatal fires when the ring stays full
// past the bounded retry — an operational failure, not backpressure.
func NewEventWriter(ring *shm.EventRing, metrics *obs.Metrics, onFatal func(error)) *EventWriter {
	return &EventWriter{
		ring:    ring,
		queue:   make(chan shm.OrderEventFrame, submitQueueDepth),
		metrics: metrics,
		onFatal: onFatal,
	}
}

// Submit enqueues one event. Blocks while the internal queue is full;
// returns an error only after Close.
func (w *EventWriter) Submit(frame *shm.OrderEventFrame) error {
	if w.closed.Load() {
		return exception.ErrOrderQueueClosed
	}
	w.queue <- *frame
	return nil
}

// Run publishes queued events until Close. Always drains the queue fully so
// late workers never block on a dead channel.
func (w *EventWriter) Run() {
	for frame := range w.queue {
		w.publish(&frame)
	}
}

// Close stops intake and lets Run exit once the queue drains. Only call
// after every producer has finished.
func (w *EventWriter) Close() {
	if w.closed.CompareAndSwap(false, true) {
		close(w.queue)
	}
}

func (w *EventWriter) publish(frame *shm.OrderEventFrame) {
	for attempt := 0; attempt < publishRetries; attempt++ {
		err := w.ring.Publish(frame)
		if err == nil {
			w.metrics.OrderEvent()
			return
		}
		if err != exception.ErrRingFull {
			w.onFatal(err)
			return
		}
		time.Sleep(publishRetryGap)
	}
	logs.Errorf("event ring full for %s, strategy not draining", shm.EventTypeName(frame.EventType))
	w.onFatal(exception.ErrRingFull)
}
