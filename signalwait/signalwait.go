// Package signalwait blocks the main goroutine on SIGINT/SIGQUIT/SIGHUP/
// SIGTERM and triggers an orderly shutdown on the first one received; a
// repeat signal arms a hard-kill timer so a hung shutdown can't wedge the
// process forever.
//
// Grounded on original_source/src/main/exit_handler.cpp's sigwait loop
// (blocking on the same four signals, logging and invoking a single
// exit callback on the first one seen) and original_source/src/main/
// main.cpp's SignalHandler (a periodic timer that raises SIGKILL once a
// shutdown duration threshold is exceeded) — both
// re-expressed with signal.Notify and a context-free polling goroutine
// since Go has no sigwait/pthread_sigmask equivalent.
package signalwait

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fixkme/corekit/mlog"
)

var watchedSignals = []os.Signal{syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP, syscall.SIGTERM}

// Wait blocks until one of SIGINT/SIGQUIT/SIGHUP/SIGTERM arrives, then
// invokes onExit exactly once. The first repeat signal logs critical and
// arms a hard-kill timer: if the process is still alive hardKillAfter after
// that repeat signal, it is killed via SIGKILL. Wait returns after onExit
// returns.
func Wait(onExit func(), hardKillAfter time.Duration) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, watchedSignals...)
	waitOn(sigCh, onExit, hardKillAfter, forceKill)
}

// waitOn is Wait's testable core: it takes the signal channel, the kill
// func, and the onExit callback as parameters instead of reaching for
// process-global state.
func waitOn(sigCh <-chan os.Signal, onExit func(), hardKillAfter time.Duration, kill func()) {
	sig := <-sigCh
	mlog.Infof("signalwait: received signal %s, triggering shutdown", sig)

	go func() {
		var armOnce sync.Once
		for s := range sigCh {
			mlog.Criticalf("signalwait: received repeat signal %s during shutdown, arming hard kill after %s", s, hardKillAfter)
			armOnce.Do(func() { armHardKill(hardKillAfter, kill) })
		}
	}()

	var once sync.Once
	once.Do(onExit)
}

func armHardKill(after time.Duration, kill func()) {
	start := time.Now()
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			elapsed := time.Since(start)
			if elapsed >= after {
				mlog.Criticalf("signalwait: shutdown duration exceeded %s, forcing kill", after)
				kill()
				return
			}
			mlog.Warnf("signalwait: shutdown in progress, %s elapsed", elapsed)
		}
	}()
}

func forceKill() {
	_ = syscall.Kill(os.Getpid(), syscall.SIGKILL)
}
