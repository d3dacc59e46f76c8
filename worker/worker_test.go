package worker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fixkme/corekit/errs"
	"github.com/fixkme/corekit/events"
	"github.com/fixkme/corekit/timersvc"
)

type recordingHandler struct {
	mu        sync.Mutex
	started   bool
	stopped   bool
	domainEvs []events.ThreadEvent
	onDomain  func(events.ThreadEvent)
}

func (h *recordingHandler) Starting() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = true
}

func (h *recordingHandler) Stopping() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
}

func (h *recordingHandler) HandleDomainEvent(e events.ThreadEvent) {
	h.mu.Lock()
	h.domainEvs = append(h.domainEvs, e)
	cb := h.onDomain
	h.mu.Unlock()
	if cb != nil {
		cb(e)
	}
}

func (h *recordingHandler) snapshot() (started, stopped bool, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started, h.stopped, len(h.domainEvs)
}

func newTestService(t *testing.T) (*timersvc.Service, func()) {
	t.Helper()
	quit := make(chan struct{})
	svc := timersvc.New()
	svc.Start(quit)
	return svc, func() { close(quit) }
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestStartRunsStartingThenStopStopsRunning(t *testing.T) {
	svc, stop := newTestService(t)
	defer stop()

	h := &recordingHandler{}
	w := New("test-worker", svc, h, 0)
	w.Start()

	waitUntil(t, time.Second, func() bool {
		started, _, _ := h.snapshot()
		return started
	})
	if !w.IsRunning() {
		t.Fatalf("expected worker to be running")
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	waitUntil(t, time.Second, func() bool { return !w.IsRunning() })

	_, stopped, _ := h.snapshot()
	if !stopped {
		t.Fatalf("expected Stopping to have been called")
	}
}

func TestDoubleStopReturnsError(t *testing.T) {
	svc, stop := newTestService(t)
	defer stop()

	h := &recordingHandler{}
	w := New("double-stop-worker", svc, h, 0)
	w.Start()
	waitUntil(t, time.Second, w.IsRunning)

	if err := w.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := w.Stop(); err == nil {
		t.Fatalf("expected second stop to return an error")
	}
	waitUntil(t, time.Second, func() bool { return !w.IsRunning() })
}

func TestStopAfterFullyStoppedReturnsWorkerAlreadyStopped(t *testing.T) {
	svc, stop := newTestService(t)
	defer stop()

	h := &recordingHandler{}
	w := New("already-stopped-worker", svc, h, 0)
	w.Start()
	waitUntil(t, time.Second, w.IsRunning)

	if err := w.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	waitUntil(t, time.Second, func() bool { return !w.IsRunning() })

	if err := w.Stop(); !errors.Is(err, errs.WorkerAlreadyStopped) {
		t.Fatalf("expected WorkerAlreadyStopped once the worker has fully stopped, got %v", err)
	}
}

func TestTransmitDispatchesDomainEvent(t *testing.T) {
	svc, stop := newTestService(t)
	defer stop()

	h := &recordingHandler{}
	w := New("transmit-worker", svc, h, 0)
	w.Start()
	waitUntil(t, time.Second, w.IsRunning)

	if err := w.Transmit(events.WorkerTestEvent{SleepFor: time.Millisecond}); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	waitUntil(t, time.Second, func() bool {
		_, _, n := h.snapshot()
		return n == 1
	})

	w.Stop()
	waitUntil(t, time.Second, func() bool { return !w.IsRunning() })
}

func TestTransmitAfterStopIsDropped(t *testing.T) {
	svc, stop := newTestService(t)
	defer stop()

	h := &recordingHandler{}
	w := New("dropped-worker", svc, h, 0)
	w.Start()
	waitUntil(t, time.Second, w.IsRunning)

	w.Stop()
	if err := w.Transmit(events.WorkerTestEvent{}); err == nil {
		t.Fatalf("expected transmit after stop to return an error")
	}
	waitUntil(t, time.Second, func() bool { return !w.IsRunning() })
}

func TestTimerFiresIntoTimerCallback(t *testing.T) {
	svc, stop := newTestService(t)
	defer stop()

	fired := make(chan struct{}, 1)
	h := &recordingHandler{}
	var w *Worker
	h.onDomain = func(events.ThreadEvent) {}
	w = New("timer-worker", svc, h, 0)
	w.Start()
	waitUntil(t, time.Second, w.IsRunning)

	w.StartTimer("tick", 15*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("expected the timer callback to fire")
	}

	w.Stop()
	waitUntil(t, time.Second, func() bool { return !w.IsRunning() })
}
