package timersvc

import (
	"context"
	"testing"
	"time"

	"github.com/fixkme/corekit/events"
	"github.com/fixkme/corekit/rtchannel"
)

func TestAddDeliversExpiredEvents(t *testing.T) {
	quit := make(chan struct{})
	defer close(quit)
	svc := New()
	svc.Start(quit)

	tx, rx := rtchannel.MakeChannel[events.ThreadEvent](16)
	defer tx.Close()

	id := svc.Add(15*time.Millisecond, tx)
	if id == 0 {
		t.Fatalf("expected a non-zero TimerId")
	}

	for i := 0; i < 2; i++ {
		e := mustReceive(t, rx)
		te, ok := e.(events.TimerExpiredEvent)
		if !ok || te.TimerId != id {
			t.Fatalf("expected TimerExpiredEvent for %d, got %#v", id, e)
		}
	}
}

func TestStopYieldsAtMostOneTrailingExpiry(t *testing.T) {
	quit := make(chan struct{})
	defer close(quit)
	svc := New()
	svc.Start(quit)

	tx, rx := rtchannel.MakeChannel[events.ThreadEvent](16)
	defer tx.Close()

	id := svc.Add(20*time.Millisecond, tx)
	mustReceive(t, rx) // first fire
	mustReceive(t, rx) // second fire

	svc.Stop(id)

	trailing := 0
	stopDeadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(stopDeadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
		e, ok := rx.Receive(ctx)
		cancel()
		if !ok {
			break
		}
		if _, ok := e.(events.TimerExpiredEvent); ok {
			trailing++
		}
	}
	if trailing > 1 {
		t.Fatalf("expected at most one trailing expiry after stop, got %d", trailing)
	}
}

func TestUpdateReschedulesUnderSameTimerId(t *testing.T) {
	quit := make(chan struct{})
	defer close(quit)
	svc := New()
	svc.Start(quit)

	tx, rx := rtchannel.MakeChannel[events.ThreadEvent](16)
	defer tx.Close()

	id := svc.Add(500*time.Millisecond, tx)
	svc.Update(id, 15*time.Millisecond)

	e := mustReceive(t, rx)
	te, ok := e.(events.TimerExpiredEvent)
	if !ok || te.TimerId != id {
		t.Fatalf("expected the rescheduled timer to fire tagged with %d, got %#v", id, e)
	}
}

func mustReceive(t *testing.T, rx *rtchannel.Rx[events.ThreadEvent]) events.ThreadEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, ok := rx.Receive(ctx)
	if !ok {
		t.Fatalf("expected an event, got none")
	}
	return e
}
