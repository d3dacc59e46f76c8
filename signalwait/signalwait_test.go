package signalwait

import (
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestWaitOnInvokesOnExitOnceOnFirstSignal(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	var exitCount int32
	var killed int32
	sigCh <- syscall.SIGTERM

	done := make(chan struct{})
	go func() {
		waitOn(sigCh, func() { atomic.AddInt32(&exitCount, 1) }, time.Hour, func() { atomic.AddInt32(&killed, 1) })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected waitOn to return after onExit runs")
	}
	if atomic.LoadInt32(&exitCount) != 1 {
		t.Fatalf("expected onExit to run exactly once, got %d", exitCount)
	}
	if atomic.LoadInt32(&killed) != 0 {
		t.Fatalf("expected no forced kill on a clean single signal, got %d", killed)
	}
}

func TestWaitOnArmsHardKillOnRepeatSignal(t *testing.T) {
	sigCh := make(chan os.Signal, 2)
	killed := make(chan struct{}, 4)
	sigCh <- syscall.SIGINT

	blockExit := make(chan struct{})
	go waitOn(sigCh, func() { <-blockExit }, 30*time.Millisecond, func() {
		select {
		case killed <- struct{}{}:
		default:
		}
	})

	time.Sleep(20 * time.Millisecond)
	sigCh <- syscall.SIGINT

	select {
	case <-killed:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a repeat signal to arm a hard kill that fires after its threshold")
	}
	close(blockExit)
}

func TestArmHardKillFiresAfterThreshold(t *testing.T) {
	killed := make(chan struct{}, 1)
	armHardKill(30*time.Millisecond, func() {
		select {
		case killed <- struct{}{}:
		default:
		}
	})

	select {
	case <-killed:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected hard-kill threshold to fire")
	}
}

func TestArmHardKillDoesNotFireBeforeThreshold(t *testing.T) {
	killed := make(chan struct{}, 1)
	armHardKill(500*time.Millisecond, func() {
		select {
		case killed <- struct{}{}:
		default:
		}
	})

	select {
	case <-killed:
		t.Fatalf("expected hard-kill not to fire before its threshold")
	case <-time.After(100 * time.Millisecond):
	}
}
