package ring

import (
	"sync"

	"github.com/fixkme/corekit/ids"
)

// Linux errno values, used symbolically the way the original io_uring-based
// implementation reports them: a fired multishot timeout completes with
// -ETIME, a cancelled one with -ECANCELED, a control-op ack is 0.
const (
	ETIME     = 62
	ECANCELED = 125
)

const (
	ResFired     int32 = -ETIME
	ResCanceled  int32 = -ECANCELED
	ResAck       int32 = 0
	ResSubmitErr int32 = -1 // generic per-op submission failure
)

// Completion is the one thing WaitCompletion ever hands back: the user_data
// tag a caller supplied at submission time, and the signed result code.
type Completion struct {
	UserData ids.URingId
	Res      int32
}

// completionPool recycles *Completion values the way rpc/pool.go recycled
// *RpcContext — a hot path (every timer tick can produce one) that would
// otherwise allocate continuously.
var completionPool = sync.Pool{New: func() any { return new(Completion) }}

func getCompletion(userData ids.URingId, res int32) *Completion {
	c := completionPool.Get().(*Completion)
	c.UserData = userData
	c.Res = res
	return c
}

func putCompletion(c *Completion) {
	*c = Completion{}
	completionPool.Put(c)
}

// Release acknowledges a completion, per spec.md's "scoped release on every
// exit path", and returns it to the pool. Callers must call this exactly
// once for every *Completion WaitCompletion hands back.
func (c *Completion) Release() {
	putCompletion(c)
}
