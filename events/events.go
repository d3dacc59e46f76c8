// Package events defines the tagged-union event hierarchy workers dispatch
// on. The original design used virtual inheritance over an event base class;
// spec.md's Design Notes ask for a tagged union instead, so ThreadEvent is a
// narrow interface and every concrete event is a small struct carrying its
// own EventReceiver tag.
package events

import (
	"time"

	"github.com/fixkme/corekit/ids"
)

// EventReceiver tags who an event is addressed to, so a worker's dispatch
// loop can route on the tag before it ever looks at the concrete type.
type EventReceiver int

const (
	ReceiverSelf EventReceiver = iota
	ReceiverTimerExpired
	ReceiverManager
	ReceiverWorker
)

func (r EventReceiver) String() string {
	switch r {
	case ReceiverSelf:
		return "self"
	case ReceiverTimerExpired:
		return "timer-expired"
	case ReceiverManager:
		return "manager"
	case ReceiverWorker:
		return "worker"
	default:
		return "unknown"
	}
}

// ThreadEvent is the sum type every event dispatched through an
// rtchannel.Channel[ThreadEvent] satisfies.
type ThreadEvent interface {
	Receiver() EventReceiver
}

// SelfKind distinguishes the (currently single) self-addressed event.
type SelfKind int

const (
	SelfExit SelfKind = iota
)

// SelfEvent is addressed to the owning worker itself: lifecycle control,
// never domain data.
type SelfEvent struct {
	Kind SelfKind
}

func (SelfEvent) Receiver() EventReceiver { return ReceiverSelf }

// ExitEvent is the canonical self-event sent by Worker.Stop via
// FlushAndSend, guaranteeing it's the next (and only) thing observed.
func ExitEvent() ThreadEvent { return SelfEvent{Kind: SelfExit} }

// TimerExpiredEvent is delivered by the timer service when a registered
// logical timer fires; the worker looks up timer_id in its own
// timer-id -> callback map.
type TimerExpiredEvent struct {
	TimerId ids.TimerId
}

func (TimerExpiredEvent) Receiver() EventReceiver { return ReceiverTimerExpired }

// ManagerKind enumerates the coordinator's own domain events. The periodic
// work tick itself is a TimerExpiredEvent the coordinator routes to its own
// callback, not a ManagerEvent; ManagerEvent only carries requests that
// cross from an external caller into the coordinator's channel.
type ManagerKind int

const (
	ManagerShutdown ManagerKind = iota
)

// ManagerEvent carries the coordinator's domain events from the outside
// world — currently just the shutdown request.
type ManagerEvent struct {
	Kind ManagerKind
}

func (ManagerEvent) Receiver() EventReceiver { return ReceiverManager }

// WorkerTestEvent is the event the coordinator fans out to every attached
// worker on each TransmitWork tick, asking it to busy-sleep for the given
// duration (a stand-in "unit of work" in the original design).
type WorkerTestEvent struct {
	SleepFor time.Duration
}

func (WorkerTestEvent) Receiver() EventReceiver { return ReceiverWorker }
