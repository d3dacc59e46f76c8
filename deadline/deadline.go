// Package deadline provides the scope-deadline logging helper: call Scope at
// the top of a function and run the returned closure when the work is done
// (typically via defer). Go has no destructors, so the original RAII
// ScopedDeadline becomes a start-time closure instead of a struct.
package deadline

import (
	"time"

	"github.com/fixkme/corekit/mlog"
)

// Scope starts a deadline budget tagged with name. The returned func must be
// invoked when the scoped work finishes; it logs at trace level if the
// elapsed time was within budget, warn if it wasn't.
func Scope(name string, budget time.Duration) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		if elapsed <= budget {
			mlog.Tracef("%s took:%s", name, elapsed)
		} else {
			mlog.Warnf("%s took:%s deadline:%s", name, elapsed, budget)
		}
	}
}
