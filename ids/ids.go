// Package ids hands out the small dense monotonic identifiers the runtime
// uses as map keys and completion user-data: TimerId and URingId. Zero is
// reserved to mean "disabled/none", matching spec.md's invariant that a
// TimerId of 0 is never live.
package ids

import "sync/atomic"

// TimerId identifies a logical timer owned by timersvc.
type TimerId int64

// URingId identifies a single outstanding completion-ring operation.
type URingId int64

// Generator is a monotonic, concurrency-safe id source. The zero value is
// ready to use and its first Next() is 1.
type Generator struct {
	counter int64
}

func (g *Generator) Next() int64 {
	return atomic.AddInt64(&g.counter, 1)
}

// TimerIds and URingIds are process-wide sources, grounded on clock.Clock's
// genId atomic-increment pattern but split so the two id spaces never
// collide even though both are backed by the same ring.
var (
	timerIds Generator
	uringIds Generator
)

func NextTimerId() TimerId {
	return TimerId(timerIds.Next())
}

func NextURingId() URingId {
	return URingId(uringIds.Next())
}
