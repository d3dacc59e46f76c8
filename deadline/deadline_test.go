package deadline

import (
	"testing"
	"time"

	"github.com/fixkme/corekit/mlog"
)

type recordingLogger struct {
	mlog.Logger
	traces, warns []string
}

func (r *recordingLogger) Tracef(format string, v ...any) { r.traces = append(r.traces, format) }
func (r *recordingLogger) Warnf(format string, v ...any)  { r.warns = append(r.warns, format) }

func TestScopeWithinBudgetLogsTrace(t *testing.T) {
	rec := &recordingLogger{}
	mlog.SetLogger(rec)
	defer mlog.SetLogger(nil)

	done := Scope("unit-test", time.Second)
	done()

	if len(rec.traces) != 1 || len(rec.warns) != 0 {
		t.Fatalf("expected one trace and no warn, got traces=%d warns=%d", len(rec.traces), len(rec.warns))
	}
}

func TestScopeOverBudgetLogsWarn(t *testing.T) {
	rec := &recordingLogger{}
	mlog.SetLogger(rec)
	defer mlog.SetLogger(nil)

	done := Scope("unit-test", 0)
	time.Sleep(time.Millisecond)
	done()

	if len(rec.warns) != 1 {
		t.Fatalf("expected one warn, got %d", len(rec.warns))
	}
}
