// Package worker implements spec.md's C4: the programming model on top of
// rtchannel — a single consumer goroutine with lifecycle hooks, logical
// timer helpers backed by timersvc, and bounded-batch, deadline-scoped event
// dispatch.
//
// Grounded on original_source/src/threading/thread.hpp/.cpp: the same
// start-latch/exit-code/stopping-flag shape, the same
// tryReceiveLimitedMany+ScopedDeadline batch loop, and the same
// fire-a-short-timer-then-exit trick for unwinding out of the blocking
// receive on Stop. Where the original lets callers override virtual
// methods, Handler is a plain interface supplied at construction — see
// spec.md's Design Notes on tagged unions over virtual inheritance, the same
// rationale extended to the dispatch strategy itself.
package worker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fixkme/corekit/deadline"
	"github.com/fixkme/corekit/errs"
	"github.com/fixkme/corekit/events"
	"github.com/fixkme/corekit/ids"
	"github.com/fixkme/corekit/mlog"
	"github.com/fixkme/corekit/rtchannel"
	"github.com/fixkme/corekit/timersvc"
)

const (
	maxEventsPerLoop            = 10
	processEventsThreshold      = time.Second
	processEventsWaitTimeout    = 100 * time.Millisecond
	defaultHandleEventThreshold = 20 * time.Millisecond
	exitTriggerDelay            = time.Millisecond
)

// Handler supplies the domain-specific parts of a worker: lifecycle hooks
// and dispatch for every event not addressed to Self or TimerExpired.
type Handler interface {
	Starting()
	Stopping()
	HandleDomainEvent(events.ThreadEvent)
}

type timerData struct {
	name     string
	onExpire func()
}

// Worker is one long-lived execution context: one goroutine, one inbound
// channel it exclusively consumes, a shared send handle other workers (and
// the coordinator) may clone and hold.
type Worker struct {
	name                 string
	svc                  *timersvc.Service
	handler              Handler
	handleEventThreshold time.Duration

	tx *rtchannel.Tx[events.ThreadEvent]
	rx *rtchannel.Rx[events.ThreadEvent]

	// timers is only ever touched from the worker's own goroutine (Starting,
	// domain dispatch, TimerExpired dispatch), so it needs no lock.
	timers map[ids.TimerId]timerData

	startOnce   sync.Once
	startGate   chan struct{}
	readyToExit atomic.Bool
	running     atomic.Bool
	stopping    atomic.Bool
	exitCode    atomic.Int32
}

// New constructs a Worker and launches its goroutine immediately; the
// goroutine blocks until Start is called, mirroring the original's
// construct-then-latch-release split.
func New(name string, svc *timersvc.Service, handler Handler, handleEventThreshold time.Duration) *Worker {
	if handleEventThreshold <= 0 {
		handleEventThreshold = defaultHandleEventThreshold
	}
	tx, rx := rtchannel.MakeChannel[events.ThreadEvent](rtchannel.DefaultCapacity)
	w := &Worker{
		name:                  name,
		svc:                   svc,
		handler:               handler,
		handleEventThreshold:  handleEventThreshold,
		tx:                    tx,
		rx:                    rx,
		timers:                make(map[ids.TimerId]timerData),
		startGate:             make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) Name() string      { return w.name }
func (w *Worker) IsRunning() bool   { return w.running.Load() }
func (w *Worker) ExitCode() int     { return int(w.exitCode.Load()) }

// Start releases the worker's goroutine to begin Starting/Execute. Safe to
// call more than once; only the first call has an effect.
func (w *Worker) Start() {
	mlog.Infof("%s start requested", w.name)
	w.startOnce.Do(func() { close(w.startGate) })
}

// Stop requests an orderly shutdown: any events still queued are discarded
// in favor of a single Exit self-event, guaranteeing the worker observes it
// next and only it. Calling Stop again logs critical and is a no-op,
// returning WorkerAlreadyStopped if the worker has already finished
// running or WorkerAlreadyStopping if it's still unwinding.
func (w *Worker) Stop() error {
	mlog.Infof("%s stop requested", w.name)
	if w.stopping.Load() && !w.running.Load() {
		mlog.Criticalf("%s stop requested when already stopped", w.name)
		return errs.WorkerAlreadyStopped
	}
	if !w.stopping.CompareAndSwap(false, true) {
		mlog.Criticalf("%s stop requested when already stopping", w.name)
		return errs.WorkerAlreadyStopping
	}
	return w.tx.FlushAndSend(events.ExitEvent())
}

// Transmit enqueues e for this worker unless it is already stopping, in
// which case the event is dropped and logged critical.
func (w *Worker) Transmit(e events.ThreadEvent) error {
	if w.stopping.Load() {
		mlog.Criticalf("%s transmit-event dropped event for receiver:%s", w.name, e.Receiver())
		return errs.WorkerAlreadyStopping
	}
	return w.tx.Send(e)
}

// StartTimer registers a logical timer with timersvc routed back into this
// worker's own channel, recording name and onExpire for when it fires.
func (w *Worker) StartTimer(name string, timeout time.Duration, onExpire func()) ids.TimerId {
	id := w.svc.Add(timeout, w.tx)
	w.timers[id] = timerData{name: name, onExpire: onExpire}
	mlog.Debugf("%s start-timer id:%d name:%s timeout:%s", w.name, id, name, timeout)
	return id
}

// StopTimer cancels a timer previously returned by StartTimer. Unknown ids
// are logged and ignored.
func (w *Worker) StopTimer(id ids.TimerId) {
	data, ok := w.timers[id]
	if !ok {
		mlog.Errorf("%s stop-timer id:%d does not exist", w.name, id)
		return
	}
	delete(w.timers, id)
	w.svc.Stop(id)
	mlog.Debugf("%s stop-timer id:%d name:%s", w.name, id, data.name)
}

func (w *Worker) run() {
	<-w.startGate
	w.running.Store(true)

	mlog.Infof("%s starting", w.name)
	w.handler.Starting()

	mlog.Infof("%s executing", w.name)
	w.exitCode.Store(int32(w.execute()))

	for id := range w.timers {
		w.svc.Stop(id)
	}
	w.timers = make(map[ids.TimerId]timerData)

	mlog.Infof("%s stopping", w.name)
	w.handler.Stopping()

	w.running.Store(false)
}

func (w *Worker) execute() int {
	for !w.readyToExit.Load() {
		w.processEvents()
	}
	return 0
}

func (w *Worker) processEvents() {
	batch, leftover := w.rx.TryReceiveLimitedMany(processEventsWaitTimeout, maxEventsPerLoop)
	if len(batch) == 0 {
		return
	}

	done := deadline.Scope(w.name+"@ProcessEvents", processEventsThreshold)
	for _, e := range batch {
		w.dispatch(e)
	}
	done()

	if leftover > 0 {
		mlog.Warnf("%s process-events max events exceeded threshold:%d n-events-left:%d", w.name, maxEventsPerLoop, leftover)
		w.rx.WakeImmediately()
	} else {
		mlog.Tracef("%s process-events n-received-events:%d", w.name, len(batch))
	}
}

func (w *Worker) dispatch(e events.ThreadEvent) {
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("%s event handling panic receiver:%s recovered:%v", w.name, e.Receiver(), r)
		}
	}()

	var scopeName string
	switch e.Receiver() {
	case events.ReceiverSelf:
		scopeName = "HandleSelfEvent"
	case events.ReceiverTimerExpired:
		scopeName = "HandleTimer"
	default:
		scopeName = "HandleDomainEvent"
	}
	done := deadline.Scope(fmt.Sprintf("%s@ProcessEvents::%s", w.name, scopeName), w.handleEventThreshold)
	defer done()

	switch e.Receiver() {
	case events.ReceiverSelf:
		w.handleSelfEvent(e)
	case events.ReceiverTimerExpired:
		w.handleTimerExpired(e)
	default:
		w.handler.HandleDomainEvent(e)
	}
}

func (w *Worker) handleSelfEvent(e events.ThreadEvent) {
	se, ok := e.(events.SelfEvent)
	if !ok {
		mlog.Criticalf("%s handle-self-event got unexpected type %T", w.name, e)
		return
	}
	switch se.Kind {
	case events.SelfExit:
		mlog.Infof("%s received exit event, requesting stop", w.name)
		go func() {
			time.Sleep(exitTriggerDelay)
			w.readyToExit.Store(true)
			w.rx.WakeImmediately()
		}()
	default:
		mlog.Errorf("%s handle-self-event unknown kind:%d", w.name, se.Kind)
	}
}

func (w *Worker) handleTimerExpired(e events.ThreadEvent) {
	te, ok := e.(events.TimerExpiredEvent)
	if !ok {
		mlog.Criticalf("%s handle-timer-expired got unexpected type %T", w.name, e)
		return
	}
	data, ok := w.timers[te.TimerId]
	if !ok {
		mlog.Warnf("%s timer-expired unknown timer:%d", w.name, te.TimerId)
		return
	}
	data.onExpire()
}
