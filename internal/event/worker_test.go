package event

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type testEvent struct {
	*Base
	payload string
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestWorkerDispatchesByType(t *testing.T) {
	w := NewWorker()

	var handled int64
	var got atomic.Value
	w.Subscribe("dispatch_test", func(e Queueable) {
		if te, ok := e.(*testEvent); ok {
			got.Store(te.payload)
		}
		e.Process()
		atomic.AddInt64(&handled, 1)
	})

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Stop(context.Background()) }()

	Bus.Enqueue(&testEvent{
		Base:    CreateBase("dispatch_test", time.Now().Add(time.Minute)),
		payload: "hello",
	})

	waitFor(t, func() bool { return atomic.LoadInt64(&handled) == 1 })
	if got.Load() != "hello" {
		t.Errorf("payload = %v, want hello", got.Load())
	}
}

func TestWorkerSkipsExpiredEvents(t *testing.T) {
	w := NewWorker()

	var handled int64
	var expiredHandled int64
	w.Subscribe("expiry_test", func(e Queueable) {
		if e.(*testEvent).payload == "stale" {
			atomic.AddInt64(&expiredHandled, 1)
		} else {
			atomic.AddInt64(&handled, 1)
		}
		e.Process()
	})

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Stop(context.Background()) }()

	Bus.Enqueue(&testEvent{
		Base:    CreateBase("expiry_test", time.Now().Add(-time.Second)),
		payload: "stale",
	})
	Bus.Enqueue(&testEvent{
		Base:    CreateBase("expiry_test", time.Now().Add(time.Minute)),
		payload: "fresh",
	})

	waitFor(t, func() bool { return atomic.LoadInt64(&handled) == 1 })
	if atomic.LoadInt64(&expiredHandled) != 0 {
		t.Error("expired event was dispatched")
	}
}

func TestWorkerStopsDispatchAfterDrop(t *testing.T) {
	w := NewWorker()

	var first, second int64
	w.Subscribe("drop_test", func(e Queueable) {
		atomic.AddInt64(&first, 1)
		e.Drop()
	})
	w.Subscribe("drop_test", func(e Queueable) {
		atomic.AddInt64(&second, 1)
	})

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Stop(context.Background()) }()

	Bus.Enqueue(&testEvent{Base: CreateBase("drop_test", time.Now().Add(time.Minute))})

	waitFor(t, func() bool { return atomic.LoadInt64(&first) == 1 })
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt64(&second) != 0 {
		t.Error("dropped event reached later subscriber")
	}
}
