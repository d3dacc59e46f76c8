// Package coordinator implements spec.md's C5: a worker itself, responsible
// for owning the set of attached workers, periodically fanning out a unit of
// work to them, and driving the process's two-phase shutdown sequence.
//
// Grounded on original_source/src/main/manager_thread.hpp/.cpp: the same
// periodic TransmitWork timer registered from Starting, the same
// workers-mutex-guarded attach/teardown, and the same
// request-shutdown/wait-for-shutdown split across two binary semaphores
// (modeled here as buffered size-1 channels, since Go has no
// std::binary_semaphore but a capacity-1 channel is exactly that shape).
package coordinator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fixkme/corekit/events"
	"github.com/fixkme/corekit/ids"
	"github.com/fixkme/corekit/mlog"
	"github.com/fixkme/corekit/timersvc"
	"github.com/fixkme/corekit/worker"
)

const (
	// DefaultTransmitPeriod is how often the coordinator fans out a
	// WorkerTest event to every attached worker.
	DefaultTransmitPeriod = 15 * time.Millisecond
	// DefaultTestTimeout is the per-work-item budget handed to workers on
	// each TransmitWork tick.
	DefaultTestTimeout = 10 * time.Millisecond
	// TeardownThreshold bounds how long shutdown waits for workers (and then
	// itself) to report not-running before logging critical and giving up
	// the wait.
	TeardownThreshold = time.Second

	teardownPollInterval        = 20 * time.Millisecond
	defaultHandleEventThreshold = 20 * time.Millisecond
)

// Coordinator owns the attached worker set and the shutdown state machine.
// It is itself a worker.Worker, dispatched through worker.Handler.
type Coordinator struct {
	w   *worker.Worker
	svc *timersvc.Service

	workersMu         sync.Mutex
	workers           map[string]*worker.Worker
	workersTerminated atomic.Bool
	transmitTimerId   ids.TimerId
	transmitPeriod    time.Duration
	testTimeout       time.Duration

	shutdownInitiate  chan struct{}
	shutdownInitiated chan struct{}
}

// New constructs a Coordinator and launches its worker goroutine
// immediately, blocked until Start is called.
func New(svc *timersvc.Service) *Coordinator {
	c := &Coordinator{
		svc:               svc,
		workers:           make(map[string]*worker.Worker),
		transmitPeriod:    DefaultTransmitPeriod,
		testTimeout:       DefaultTestTimeout,
		shutdownInitiate:  make(chan struct{}, 1),
		shutdownInitiated: make(chan struct{}, 1),
	}
	c.w = worker.New("coordinator", svc, c, defaultHandleEventThreshold)
	return c
}

// SetTransmitPeriod overrides the default TransmitWork period. Only safe to
// call before Start.
func (c *Coordinator) SetTransmitPeriod(period time.Duration) {
	c.transmitPeriod = period
}

// SetTestTimeout overrides the default per-worker test budget. Only safe to
// call before Start.
func (c *Coordinator) SetTestTimeout(timeout time.Duration) {
	c.testTimeout = timeout
}

// AttachWorker adds w to the set the coordinator fans work out to and tears
// down on shutdown.
func (c *Coordinator) AttachWorker(name string, w *worker.Worker) {
	c.workersMu.Lock()
	defer c.workersMu.Unlock()
	c.workers[name] = w
}

// Start releases the coordinator's own worker goroutine.
func (c *Coordinator) Start() {
	c.w.Start()
}

// ExitCode reports the coordinator's own worker exit code once it has
// stopped.
func (c *Coordinator) ExitCode() int {
	return c.w.ExitCode()
}

// IsRunning reports whether the coordinator's own worker goroutine is still
// executing.
func (c *Coordinator) IsRunning() bool {
	return c.w.IsRunning()
}

// RequestShutdown signals that shutdown should begin; safe to call from any
// goroutine, any number of times (only the first has effect until consumed
// by WaitForShutdown).
func (c *Coordinator) RequestShutdown() {
	mlog.Infof("shutdown requested for coordinator")
	select {
	case c.shutdownInitiate <- struct{}{}:
	default:
	}
}

// WaitForShutdown blocks until RequestShutdown has been called, then drives
// the full two-phase teardown: ask the coordinator to tear down every
// worker, wait for that to be acknowledged, stop the coordinator itself,
// then poll both worker and coordinator liveness up to TeardownThreshold,
// logging critical (never fatal) if that's exceeded. Intended to be called
// once from the process's main goroutine.
func (c *Coordinator) WaitForShutdown() {
	mlog.Infof("waiting for shutdown initiate signal for coordinator")
	<-c.shutdownInitiate
	mlog.Infof("shutdown initiate signal for coordinator acquired")

	if err := c.w.Transmit(events.ManagerEvent{Kind: events.ManagerShutdown}); err != nil {
		mlog.Errorf("coordinator failed to transmit shutdown event: %v", err)
	}

	mlog.Infof("waiting for shutdown initiated signal for coordinator")
	<-c.shutdownInitiated
	mlog.Infof("shutdown initiated signal for coordinator acquired")

	c.w.Stop()

	c.waitForWorkersShutdown()
	c.waitForCoordinatorShutdown()
}

func (c *Coordinator) waitForWorkersShutdown() {
	mlog.Infof("coordinator workers shutdown started")
	start := time.Now()
	for c.workersRunning() {
		time.Sleep(teardownPollInterval)
		elapsed := time.Since(start)
		if elapsed >= TeardownThreshold {
			mlog.Criticalf("coordinator workers shutdown duration:%s exceeded threshold duration:%s", elapsed, TeardownThreshold)
			break
		}
		mlog.Infof("coordinator workers shutdown duration:%s", elapsed)
	}
	mlog.Infof("coordinator workers shutdown complete")
}

func (c *Coordinator) waitForCoordinatorShutdown() {
	mlog.Infof("coordinator shutdown starting")
	start := time.Now()
	for c.w.IsRunning() {
		time.Sleep(teardownPollInterval)
		elapsed := time.Since(start)
		if elapsed >= TeardownThreshold {
			mlog.Criticalf("coordinator shutdown duration:%s exceeded threshold duration:%s", elapsed, TeardownThreshold)
			break
		}
		mlog.Infof("coordinator shutdown duration:%s", elapsed)
	}
	mlog.Infof("coordinator shutdown complete")
}

func (c *Coordinator) workersRunning() bool {
	c.workersMu.Lock()
	defer c.workersMu.Unlock()
	for _, w := range c.workers {
		if w.IsRunning() {
			return true
		}
	}
	return false
}

func (c *Coordinator) sendEventsToWorkers() {
	c.workersMu.Lock()
	defer c.workersMu.Unlock()
	if c.workersTerminated.Load() {
		mlog.Warnf("coordinator workers terminated")
		return
	}
	for name, w := range c.workers {
		mlog.Infof("coordinator sending work to %s", name)
		if err := w.Transmit(events.WorkerTestEvent{SleepFor: c.testTimeout}); err != nil {
			mlog.Warnf("coordinator failed sending work to %s: %v", name, err)
			continue
		}
		mlog.Debugf("coordinator completed sending work to %s", name)
	}
}

func (c *Coordinator) teardownWorkers() {
	c.workersMu.Lock()
	defer c.workersMu.Unlock()
	if c.workersTerminated.Load() {
		mlog.Criticalf("coordinator workers termination has already been requested")
		return
	}
	c.workersTerminated.Store(true)

	mlog.Infof("coordinator stopping transmit timer")
	c.w.StopTimer(c.transmitTimerId)

	mlog.Infof("coordinator tearing down all workers")
	for name, w := range c.workers {
		mlog.Infof("coordinator stopping %s", name)
		if err := w.Stop(); err != nil {
			mlog.Warnf("coordinator stop for %s: %v", name, err)
		}
	}
	mlog.Infof("coordinator stop requested for all workers")
}

func (c *Coordinator) initiateShutdown() {
	mlog.Infof("coordinator initiating shutdown")
	c.teardownWorkers()
	select {
	case c.shutdownInitiated <- struct{}{}:
	default:
	}
	mlog.Infof("coordinator initiated shutdown")
}

// Starting implements worker.Handler.
func (c *Coordinator) Starting() {
	mlog.Infof("coordinator setting up periodic timer for self transmitting")
	c.transmitTimerId = c.w.StartTimer("TransmitWork", c.transmitPeriod, c.sendEventsToWorkers)
}

// Stopping implements worker.Handler.
func (c *Coordinator) Stopping() {}

// HandleDomainEvent implements worker.Handler.
func (c *Coordinator) HandleDomainEvent(e events.ThreadEvent) {
	me, ok := e.(events.ManagerEvent)
	if !ok {
		mlog.Errorf("coordinator handle-event got unexpected type %T", e)
		return
	}
	switch me.Kind {
	case events.ManagerShutdown:
		c.initiateShutdown()
	default:
		mlog.Errorf("coordinator handle-event unknown manager kind:%d", me.Kind)
	}
}
