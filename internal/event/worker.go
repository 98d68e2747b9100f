package event

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Worker drains the bus and fans events out to the subscribers registered
// for their type. Unhandled, unprocessed events are re-queued until they
// expire. Runs under the lifecycle runtime.
type Worker struct {
	subscriptions map[string][]func(event Queueable)
	cancel        context.CancelFunc
	logger        *log.Entry
}

func NewWorker() *Worker {
	return &Worker{
		subscriptions: map[string][]func(event Queueable){},
		logger:        log.WithField("context", "event_worker"),
	}
}

// Subscribe registers a handler for one event type. Not safe to call after
// Start.
func (w *Worker) Subscribe(eventType string, handler func(event Queueable)) {
	w.subscriptions[eventType] = append(w.subscriptions[eventType], handler)
}

func (w *Worker) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.run(runCtx)
	_ = ctx
	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	_ = ctx
	if w.cancel != nil {
		w.cancel()
	}
	return nil
}

func (w *Worker) run(ctx context.Context) {
	done := ctx.Done()
	profileTicker := time.NewTicker(5 * time.Minute)
	defer profileTicker.Stop()

	for {
		select {
		case <-done:
			w.logger.Info("shutting down event worker by cancelled context")
			return
		case <-profileTicker.C:
			if qlen := len(Bus.q); qlen > 0 {
				w.logger.Debugf("unprocessed queue length: %d", qlen)
			}
		default:
			time.Sleep(1 * time.Millisecond)
			event := Bus.dequeue()
			if event == nil {
				continue
			}
			if event.Expired() {
				continue
			}

			subscribers, ok := w.subscriptions[event.Type()]
			if !ok {
				Bus.Enqueue(event)
				continue
			}
			for _, sub := range subscribers {
				sub(event)
				if event.IsDropped() {
					break
				}
			}

			if event.IsDropped() {
				continue
			}
			if !event.IsProcessed() {
				Bus.Enqueue(event)
			}
		}
	}
}
