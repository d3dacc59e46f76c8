package main

import (
	"time"

	"github.com/fixkme/corekit/events"
	"github.com/fixkme/corekit/mlog"
)

// genericWorker is the domain Handler attached to every plain worker
// corekitd spawns: it has no state of its own beyond a name, and answers
// WorkerTestEvent by sleeping for the requested duration, standing in for
// real work.
//
// Grounded on original_source/src/main/worker_thread.cpp's WorkerThread::
// HandleEvent, which does exactly this for its ManagerEvent::WorkerTest
// case.
type genericWorker struct {
	name string
}

func (g *genericWorker) Starting() {
	mlog.Infof("%s starting", g.name)
}

func (g *genericWorker) Stopping() {
	mlog.Infof("%s stopping", g.name)
}

func (g *genericWorker) HandleDomainEvent(e events.ThreadEvent) {
	switch ev := e.(type) {
	case events.WorkerTestEvent:
		mlog.Infof("%s handle-event 'Test', sleeping for %s", g.name, ev.SleepFor)
		time.Sleep(ev.SleepFor)
	default:
		mlog.Errorf("%s handle-event unknown event type %T", g.name, e)
	}
}
