// Package control implements spec.md's C6: an optional loopback admin
// listener accepting newline-delimited text commands (status/shutdown/
// ping), each request tagged with a fresh correlation id and routed through
// a radix tree instead of the runtime's protobuf/grpc RPC machinery — this
// plane is intentionally a much smaller, human-typeable protocol.
//
// Grounded on the teacher's rpc/gnet_server.go for the gnet wiring style
// (BuiltinEventEngine embedding, OnTraffic length-prefixed read loop) and
// rpc/gnet_connection.go for the OnBoot/OnOpen/OnClose lifecycle hooks,
// re-expressed around line-delimited text instead of length-prefixed
// protobuf frames since this plane carries no generated service stubs.
package control

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/armon/go-radix"
	"github.com/google/uuid"
	"github.com/panjf2000/gnet/v2"
	"github.com/rs/xid"

	"github.com/fixkme/corekit/mlog"
)

// Coordinator is the narrow slice of coordinator.Coordinator the control
// plane needs; kept as an interface here so this package doesn't need to
// import worker/timersvc transitively and so it's trivial to fake in tests.
type Coordinator interface {
	IsRunning() bool
	ExitCode() int
	RequestShutdown()
}

type commandHandler func(c Coordinator, args []string) string

// Server is a single loopback gnet listener dispatching commands against a
// Coordinator. Construct with New, launch with Run (blocks until Stop).
type Server struct {
	gnet.BuiltinEventEngine

	addr        string
	coordinator Coordinator
	router      *radix.Tree

	mu  sync.Mutex
	eng gnet.Engine
}

type connState struct {
	id uuid.UUID
}

// New builds a Server listening on addr (e.g. "tcp://127.0.0.1:7711") once
// Run is called.
func New(addr string, coordinator Coordinator) *Server {
	s := &Server{
		addr:        addr,
		coordinator: coordinator,
		router:      radix.New(),
	}
	s.router.Insert("ping", commandHandler(cmdPing))
	s.router.Insert("status", commandHandler(cmdStatus))
	s.router.Insert("shutdown", commandHandler(cmdShutdown))
	return s
}

// Run blocks serving connections until Stop is called or gnet.Run returns
// an error.
func (s *Server) Run() error {
	return gnet.Run(s, s.addr, gnet.WithMulticore(false))
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	eng := s.eng
	s.mu.Unlock()
	return eng.Stop(ctx)
}

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.mu.Lock()
	s.eng = eng
	s.mu.Unlock()
	mlog.Infof("control: listening on %s", s.addr)
	return gnet.None
}

func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	cs := &connState{id: uuid.New()}
	c.SetContext(cs)
	mlog.Debugf("control: connection opened id:%s remote:%s", cs.id, c.RemoteAddr())
	return nil, gnet.None
}

func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	if cs, ok := c.Context().(*connState); ok {
		mlog.Debugf("control: connection closed id:%s err:%v", cs.id, err)
	}
	return gnet.None
}

func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	for {
		n := c.InboundBuffered()
		if n == 0 {
			return gnet.None
		}
		buf, err := c.Peek(n)
		if err != nil {
			return gnet.None
		}
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			return gnet.None
		}
		line, err := c.Next(idx + 1)
		if err != nil {
			return gnet.None
		}
		reply := dispatchLine(s.router, s.coordinator, line)
		if err := c.AsyncWrite([]byte(reply+"\n"), nil); err != nil {
			mlog.Warnf("control: write failed: %v", err)
			return gnet.Close
		}
	}
}

// dispatchLine is the pure routing core, factored out of OnTraffic so it's
// testable without a live gnet connection.
func dispatchLine(router *radix.Tree, coord Coordinator, line []byte) string {
	reqId := xid.New().String()
	fields := strings.Fields(string(bytes.TrimRight(line, "\r\n")))
	if len(fields) == 0 {
		return reqId + " ERR empty command"
	}
	v, ok := router.Get(strings.ToLower(fields[0]))
	if !ok {
		return reqId + " ERR unknown command: " + fields[0]
	}
	handler := v.(commandHandler)
	return reqId + " " + handler(coord, fields[1:])
}

func cmdPing(Coordinator, []string) string {
	return "PONG"
}

func cmdStatus(c Coordinator, _ []string) string {
	return fmt.Sprintf("OK running=%v exit_code=%d", c.IsRunning(), c.ExitCode())
}

func cmdShutdown(c Coordinator, _ []string) string {
	c.RequestShutdown()
	return "OK shutdown requested"
}
