package control

import (
	"strings"
	"testing"

	"github.com/armon/go-radix"
)

type fakeCoordinator struct {
	running        bool
	exitCode       int
	shutdownCalled int
}

func (f *fakeCoordinator) IsRunning() bool { return f.running }
func (f *fakeCoordinator) ExitCode() int   { return f.exitCode }
func (f *fakeCoordinator) RequestShutdown() {
	f.shutdownCalled++
}

func newTestRouter() *radix.Tree {
	r := radix.New()
	r.Insert("ping", commandHandler(cmdPing))
	r.Insert("status", commandHandler(cmdStatus))
	r.Insert("shutdown", commandHandler(cmdShutdown))
	return r
}

func TestDispatchPing(t *testing.T) {
	reply := dispatchLine(newTestRouter(), &fakeCoordinator{}, []byte("ping\n"))
	if !strings.HasSuffix(reply, "PONG") {
		t.Fatalf("expected reply to end with PONG, got %q", reply)
	}
	fields := strings.Fields(reply)
	if len(fields) != 2 {
		t.Fatalf("expected a request id followed by PONG, got %q", reply)
	}
}

func TestDispatchStatusReportsCoordinatorState(t *testing.T) {
	c := &fakeCoordinator{running: true, exitCode: 0}
	reply := dispatchLine(newTestRouter(), c, []byte("status\n"))
	if !strings.Contains(reply, "running=true") {
		t.Fatalf("expected reply to report running=true, got %q", reply)
	}
}

func TestDispatchShutdownInvokesCoordinator(t *testing.T) {
	c := &fakeCoordinator{}
	reply := dispatchLine(newTestRouter(), c, []byte("shutdown\n"))
	if c.shutdownCalled != 1 {
		t.Fatalf("expected RequestShutdown to be called once, got %d", c.shutdownCalled)
	}
	if !strings.Contains(reply, "OK") {
		t.Fatalf("expected an OK reply, got %q", reply)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	reply := dispatchLine(newTestRouter(), &fakeCoordinator{}, []byte("bogus\n"))
	if !strings.Contains(reply, "ERR unknown command") {
		t.Fatalf("expected an unknown-command error, got %q", reply)
	}
}

func TestDispatchEmptyLine(t *testing.T) {
	reply := dispatchLine(newTestRouter(), &fakeCoordinator{}, []byte("\n"))
	if !strings.Contains(reply, "ERR empty command") {
		t.Fatalf("expected an empty-command error, got %q", reply)
	}
}

func TestEveryReplyCarriesAUniqueRequestId(t *testing.T) {
	router := newTestRouter()
	c := &fakeCoordinator{}
	a := dispatchLine(router, c, []byte("ping\n"))
	b := dispatchLine(router, c, []byte("ping\n"))
	idA := strings.Fields(a)[0]
	idB := strings.Fields(b)[0]
	if idA == idB {
		t.Fatalf("expected distinct request ids, got %q twice", idA)
	}
}
