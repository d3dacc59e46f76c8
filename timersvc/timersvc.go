// Package timersvc implements spec.md's C2: a single dedicated context that
// multiplexes many logical timers, one per worker registration, onto the
// shared completion ring (package ring). Workers never touch the ring
// directly; they mint a TimerId and ask the Service to Add/Update/Stop it,
// and receive TimerExpired events back on their own channel.
//
// Grounded on original_source/src/timers/timer_thread.hpp/.cpp: the same
// split between a logical TimerId (minted by the requester) and a kernel
// URingId (minted by the service), the same owners map kept alive by a
// cloned Tx handle, and the same tolerate-one-trailing-expiry cancellation
// contract.
package timersvc

import (
	"fmt"
	"time"

	"github.com/fixkme/corekit/deadline"
	"github.com/fixkme/corekit/errs"
	"github.com/fixkme/corekit/events"
	"github.com/fixkme/corekit/ids"
	"github.com/fixkme/corekit/mlog"
	"github.com/fixkme/corekit/ring"
	"github.com/fixkme/corekit/rtchannel"
)

// pollInterval bounds how long the service blocks on a single ring
// completion before checking its own request queue, mirroring the
// original's 20ms io_uring wait.
const pollInterval = 20 * time.Millisecond

type request interface {
	isTimerRequest()
}

type addRequest struct {
	id      ids.TimerId
	timeout time.Duration
	ownerTx *rtchannel.Tx[events.ThreadEvent]
}

func (addRequest) isTimerRequest() {}

type updateRequest struct {
	targetId   ids.TimerId
	newTimeout time.Duration
}

func (updateRequest) isTimerRequest() {}

type stopRequest struct {
	targetId ids.TimerId
}

func (stopRequest) isTimerRequest() {}

type pendingKind int

const (
	kindExpire pendingKind = iota
	kindUpdate
	kindCancel
)

type pendingEntry struct {
	timerId ids.TimerId
	kind    pendingKind
}

// Service is the timer multiplexer. One per process; every worker (and the
// coordinator) shares it by handle.
type Service struct {
	ring *ring.Ring

	// mutated only from run's own goroutine, per spec.md's C2 ownership rule.
	pending      map[ids.URingId]pendingEntry
	owners       map[ids.TimerId]*rtchannel.Tx[events.ThreadEvent]
	timerToURing map[ids.TimerId]ids.URingId

	reqTx *rtchannel.Tx[request]
	reqRx *rtchannel.Rx[request]
}

// New constructs a Service with its own ring and request channel. Call
// Start before issuing any Add/Update/Stop.
func New() *Service {
	tx, rx := rtchannel.MakeChannel[request](rtchannel.DefaultCapacity)
	return &Service{
		ring:         ring.NewRing(),
		pending:      make(map[ids.URingId]pendingEntry),
		owners:       make(map[ids.TimerId]*rtchannel.Tx[events.ThreadEvent]),
		timerToURing: make(map[ids.TimerId]ids.URingId),
		reqTx:        tx,
		reqRx:        rx,
	}
}

// Start launches the service's own goroutine (and the ring's) until quit is
// closed.
func (s *Service) Start(quit <-chan struct{}) {
	ringQuit := make(chan struct{})
	s.ring.Start(ringQuit)
	go func() {
		s.run(quit)
		close(ringQuit)
	}()
}

// Add registers a new logical timer with the given period, delivering
// TimerExpired{id} to tx on every fire until Stop is called. The service
// keeps its own cloned handle to tx so the caller's handle may be closed
// independently — matching spec.md's shared-ownership note for the owner
// channel. Returns the freshly minted TimerId immediately; submission to the
// ring happens asynchronously on the service's own goroutine.
func (s *Service) Add(timeout time.Duration, tx *rtchannel.Tx[events.ThreadEvent]) ids.TimerId {
	id := ids.NextTimerId()
	owned := tx.Clone()
	if err := s.reqTx.Send(addRequest{id: id, timeout: timeout, ownerTx: owned}); err != nil {
		mlog.Errorf("timersvc: %v add timer:%d: %v", errs.TimerQueueFull, id, err)
		owned.Close()
	}
	return id
}

// Update reschedules an existing timer to fire every newTimeout. A timer
// that has already fired its final ack from a previous Stop is logged and
// ignored.
func (s *Service) Update(target ids.TimerId, newTimeout time.Duration) {
	if err := s.reqTx.Send(updateRequest{targetId: target, newTimeout: newTimeout}); err != nil {
		mlog.Errorf("timersvc: %v update timer:%d: %v", errs.TimerQueueFull, target, err)
	}
}

// Stop asks the service to cancel target. Returns immediately; actual
// cessation is acknowledged asynchronously and callers must tolerate at most
// one trailing TimerExpired(target) delivered before the cancel lands.
func (s *Service) Stop(target ids.TimerId) {
	if err := s.reqTx.Send(stopRequest{targetId: target}); err != nil {
		mlog.Errorf("timersvc: %v stop timer:%d: %v", errs.TimerQueueFull, target, err)
	}
}

func (s *Service) run(quit <-chan struct{}) {
	mlog.Debugf("timersvc: started")
	defer mlog.Debugf("timersvc: stopped")
	for {
		select {
		case <-quit:
			return
		default:
		}

		if c, ok := s.ring.WaitCompletion(pollInterval); ok {
			s.handleCompletion(c)
			c.Release()
		}

		for _, req := range s.reqRx.TryReceiveMany(0) {
			s.handleRequest(req)
		}
	}
}

func (s *Service) handleRequest(req request) {
	switch r := req.(type) {
	case addRequest:
		s.addTimer(r)
	case updateRequest:
		s.updateTimer(r)
	case stopRequest:
		s.cancelTimer(r)
	default:
		mlog.Errorf("timersvc: unknown request type %T", req)
	}
}

func (s *Service) addTimer(r addRequest) {
	urId := ids.NextURingId()
	if !s.ring.SubmitTimeout(urId, r.timeout) {
		mlog.Errorf("timersvc: ring submission failed for timer:%d", r.id)
		r.ownerTx.Close()
		return
	}
	s.pending[urId] = pendingEntry{timerId: r.id, kind: kindExpire}
	s.owners[r.id] = r.ownerTx
	s.timerToURing[r.id] = urId
	mlog.Debugf("timersvc: added timer:%d timeout:%s", r.id, r.timeout)
}

func (s *Service) updateTimer(r updateRequest) {
	urId, ok := s.timerToURing[r.targetId]
	if !ok {
		mlog.Warnf("timersvc: %v update timer:%d", errs.TimerUnknown, r.targetId)
		return
	}
	opId := ids.NextURingId()
	if !s.ring.SubmitTimeoutUpdate(opId, urId, r.newTimeout) {
		mlog.Errorf("timersvc: update submission failed for timer:%d", r.targetId)
		return
	}
	s.pending[opId] = pendingEntry{timerId: r.targetId, kind: kindUpdate}
	mlog.Debugf("timersvc: updating timer:%d to timeout:%s", r.targetId, r.newTimeout)
}

func (s *Service) cancelTimer(r stopRequest) {
	urId, ok := s.timerToURing[r.targetId]
	if !ok {
		mlog.Warnf("timersvc: %v stop timer:%d", errs.TimerUnknown, r.targetId)
		return
	}
	opId := ids.NextURingId()
	if !s.ring.SubmitTimeoutCancel(opId, urId) {
		mlog.Errorf("timersvc: cancel submission failed for timer:%d", r.targetId)
		return
	}
	s.pending[opId] = pendingEntry{timerId: r.targetId, kind: kindCancel}
	mlog.Debugf("timersvc: cancelling timer:%d", r.targetId)
}

func (s *Service) handleCompletion(c *ring.Completion) {
	pend, ok := s.pending[c.UserData]
	if !ok {
		mlog.Errorf("timersvc: completion for unknown uring id:%d res:%d", c.UserData, c.Res)
		return
	}

	switch pend.kind {
	case kindExpire:
		s.handleExpireCompletion(c, pend)
	case kindUpdate:
		delete(s.pending, c.UserData)
		if c.Res != ring.ResAck {
			mlog.Errorf("timersvc: update failed timer:%d res:%d", pend.timerId, c.Res)
		}
	case kindCancel:
		delete(s.pending, c.UserData)
		if c.Res != ring.ResAck {
			mlog.Errorf("timersvc: cancel failed timer:%d res:%d", pend.timerId, c.Res)
		}
	}
}

func (s *Service) handleExpireCompletion(c *ring.Completion, pend pendingEntry) {
	switch c.Res {
	case ring.ResFired:
		tx, ok := s.owners[pend.timerId]
		if !ok {
			mlog.Warnf("timersvc: expired timer:%d has no owner, dropping", pend.timerId)
			return
		}
		done := deadline.Scope(fmt.Sprintf("timer-expired:%d", pend.timerId), 20*time.Millisecond)
		err := tx.Send(events.TimerExpiredEvent{TimerId: pend.timerId})
		done()
		if err != nil {
			mlog.Warnf("timersvc: failed delivering expiry for timer:%d: %v", pend.timerId, err)
		}

	case ring.ResCanceled:
		if tx, ok := s.owners[pend.timerId]; ok {
			tx.Close()
			delete(s.owners, pend.timerId)
		}
		delete(s.timerToURing, pend.timerId)
		delete(s.pending, c.UserData)
		mlog.Debugf("timersvc: timer:%d cancelled", pend.timerId)

	default:
		mlog.Errorf("timersvc: expire completion timer:%d res:%d", pend.timerId, c.Res)
	}
}
