// Package ring models the "kernel completion ring" spec.md's C1 names: a
// narrow submit/complete queue pair built for multiplexing timeouts. There
// is no io_uring binding anywhere in the Go ecosystem this repository draws
// on, so — per spec.md's own Design Notes, which ask for "only the
// centralized [ring] service" and explicitly abandon the per-worker POSIX
// timer approach — the ring is implemented the same way the teacher's own
// centralized timer already was: a four-level hierarchical timing wheel
// (the clock package's design from github.com/fixkme/gokit, adapted in place) that emits
// the same completion shape and multishot/cancel/update semantics a real
// io_uring timeout chain would.
package ring

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/fixkme/corekit/ids"
	"github.com/fixkme/corekit/mlog"
	"github.com/fixkme/corekit/rtime"
)

const (
	_SI               = 10 // ms, wheel tick granularity
	_TIME_WHEEL_LEVEL = 4
)

var (
	_LEVEL_DIVIS = [_TIME_WHEEL_LEVEL]int64{0, 10, 18, 24}
	_LEVEL_SLOTS = [_TIME_WHEEL_LEVEL]int64{1 << 10, 1 << 8, 1 << 6, 1 << 6}
	_LEVEL_MASKS = [_TIME_WHEEL_LEVEL]int64{}
	_LEVEL_TICKS = [_TIME_WHEEL_LEVEL]int64{}
)

func init() {
	for i := 0; i < _TIME_WHEEL_LEVEL; i++ {
		_LEVEL_MASKS[i] = _LEVEL_SLOTS[i] - 1
		if i > 0 {
			_LEVEL_TICKS[i] = _LEVEL_SLOTS[i] * _LEVEL_TICKS[i-1]
		} else {
			_LEVEL_TICKS[i] = _LEVEL_SLOTS[i]
		}
	}
}

var errRingClosed = errors.New("ring is closed")

// opKind distinguishes what a taskch closure is doing, only so submit
// failures can be logged with the right verb.
type opKind int

const (
	opTimeout opKind = iota
	opCancel
	opUpdate
)

// Ring is the completion ring. Mutation of the wheel only ever happens on
// its own goroutine (via taskch), matching clock.Clock's ownership
// discipline; completions flow out on a buffered channel WaitCompletion
// reads from.
type Ring struct {
	slot   [_TIME_WHEEL_LEVEL]int64
	tw     [_TIME_WHEEL_LEVEL][]*submissionList
	locs   map[ids.URingId]*submission
	lastMs int64

	taskch     chan func()
	completech chan *Completion
	closed     atomic.Bool
}

func NewRing() *Ring {
	r := &Ring{
		locs:       make(map[ids.URingId]*submission),
		taskch:     make(chan func(), 10240),
		completech: make(chan *Completion, 4096),
	}
	for i := 0; i < _TIME_WHEEL_LEVEL; i++ {
		r.tw[i] = make([]*submissionList, _LEVEL_SLOTS[i])
	}
	return r
}

// Start launches the ring's tick loop; it stops when quit is closed.
func (r *Ring) Start(quit <-chan struct{}) {
	go r.run(quit)
}

// SubmitTimeout enqueues a multishot timeout tagged with userData: it
// produces a -ETIME completion on every expiry, re-arming itself with the
// same period, until cancelled. Returns false if the ring has been closed or
// the internal submission queue is saturated (a recoverable failure per
// spec.md §4.1).
func (r *Ring) SubmitTimeout(userData ids.URingId, timeout time.Duration) bool {
	return r.pushTask(opTimeout, func() {
		r.addSubmission(userData, timeout.Milliseconds())
	})
}

// SubmitTimeoutCancel enqueues a cancel targeting the submission tagged
// targetUserData. Two completions follow on success: a -ECANCELED on
// targetUserData (the original expire entry) and a 0 ack on userData (the
// cancel op itself). If no such submission exists, userData alone gets a
// non-zero failure completion.
func (r *Ring) SubmitTimeoutCancel(userData, targetUserData ids.URingId) bool {
	return r.pushTask(opCancel, func() {
		s, ok := r.locs[targetUserData]
		if !ok {
			mlog.Warnf("ring: cancel target:%d not found", targetUserData)
			r.emit(userData, ResSubmitErr)
			return
		}
		s.cancelled = true
		s.removeFromList()
		delete(r.locs, targetUserData)
		r.emit(targetUserData, ResCanceled)
		r.emit(userData, ResAck)
	})
}

// SubmitTimeoutUpdate enqueues an update of the submission tagged
// targetUserData to a new timeout, re-scheduling it without changing its
// user_data tag (future fires still report targetUserData). Acks userData
// with 0 on success, non-zero on failure.
func (r *Ring) SubmitTimeoutUpdate(userData, targetUserData ids.URingId, newTimeout time.Duration) bool {
	return r.pushTask(opUpdate, func() {
		s, ok := r.locs[targetUserData]
		if !ok {
			mlog.Warnf("ring: update target:%d not found", targetUserData)
			r.emit(userData, ResSubmitErr)
			return
		}
		s.removeFromList()
		delete(r.locs, targetUserData)
		s.periodMs = newTimeout.Milliseconds()
		s.whenMs = r.lastMs + s.periodMs
		r.addSlot(s)
		r.emit(userData, ResAck)
	})
}

// WaitCompletion blocks for up to timeout for one completion. A nil result
// with ok==false means "no event" — the caller (the timer service's control
// loop) is expected to treat that identically whether it was a real timeout
// or an interrupted wait, per spec.md §4.1. The caller must call
// Completion.Release() on whatever it gets back.
func (r *Ring) WaitCompletion(timeout time.Duration) (*Completion, bool) {
	select {
	case c := <-r.completech:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}

func (r *Ring) emit(userData ids.URingId, res int32) {
	c := getCompletion(userData, res)
	select {
	case r.completech <- c:
	default:
		mlog.Errorf("ring: completion channel full, dropping user_data:%d res:%d", userData, res)
		putCompletion(c)
	}
}

func (r *Ring) addSubmission(userData ids.URingId, periodMs int64) {
	if periodMs <= 0 {
		periodMs = 1
	}
	s := &submission{userData: userData, periodMs: periodMs, whenMs: r.lastMs + periodMs}
	r.addSlot(s)
}

func (r *Ring) addSlot(s *submission) {
	var ticks, level, slot int64
	ticks = (s.whenMs - r.lastMs + _SI - 1) / _SI
	if ticks <= 0 {
		ticks = 1
	}
	for level = 0; level < _TIME_WHEEL_LEVEL; level++ {
		if ticks < _LEVEL_TICKS[level] {
			slot = ((ticks >> _LEVEL_DIVIS[level]) + r.slot[level]) & _LEVEL_MASKS[level]
			break
		}
	}
	if level == _TIME_WHEEL_LEVEL {
		level--
		slot = _LEVEL_MASKS[level]
	}
	r.putSlot(level, slot, s)
}

func (r *Ring) putSlot(level, slot int64, s *submission) {
	l := r.tw[level][slot]
	if l == nil {
		l = newSubmissionList()
		r.tw[level][slot] = l
	}
	l.PushBack(s)
	r.locs[s.userData] = s
}

func (r *Ring) fire(nowMs int64) {
	l := r.tw[0][r.slot[0]]
	if l == nil {
		return
	}
	l.PopRange(func(s *submission) bool {
		delete(r.locs, s.userData)
		if s.cancelled {
			return true
		}
		if s.whenMs <= nowMs {
			r.emit(s.userData, ResFired)
			// multishot: re-arm immediately with the same period.
			s.whenMs = nowMs + s.periodMs
			r.addSlot(s)
		} else {
			r.addSlot(s)
		}
		return true
	})
}

func (r *Ring) cascade(nowMs, tickMs int64) {
	r.slot[0] = (r.slot[0] + 1) & _LEVEL_MASKS[0]
	r.fire(nowMs)
	for i := 1; i < _TIME_WHEEL_LEVEL; i++ {
		if r.slot[i-1] != 0 {
			break
		}
		r.slot[i] = (r.slot[i] + 1) & _LEVEL_MASKS[i]
		l := r.tw[i][r.slot[i]]
		if l == nil {
			continue
		}
		l.PopRange(func(s *submission) bool {
			if s.cancelled {
				delete(r.locs, s.userData)
				return true
			}
			r.addSlot(s)
			return true
		})
	}
}

func (r *Ring) run(quit <-chan struct{}) {
	tickSpan := time.Millisecond * _SI
	ticker := time.NewTimer(tickSpan)
	r.lastMs = rtime.NowMS()
	var tk int64
	for {
		select {
		case <-quit:
			r.closed.Store(true)
			close(r.taskch)
			return
		case <-ticker.C:
			nowMs := rtime.NowMS()
			tk = r.lastMs + _SI
			r.lastMs += _SI * ((nowMs - r.lastMs) / _SI)
			for ; tk <= r.lastMs; tk += _SI {
				r.cascade(nowMs, tk)
			}
			ticker.Reset(tickSpan)
		case fn, ok := <-r.taskch:
			if ok {
				fn()
			}
		}
	}
}

func (r *Ring) pushTask(kind opKind, f func()) bool {
	if r.closed.Load() {
		return false
	}
	done := make(chan struct{}, 1)
	wrapped := func() {
		defer close(done)
		f()
	}
	select {
	case r.taskch <- wrapped:
	default:
		mlog.Errorf("ring: submit queue full, op:%d dropped", kind)
		return false
	}
	<-done
	return true
}
