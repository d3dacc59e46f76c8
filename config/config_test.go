package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/fixkme/corekit/mlog"
)

func TestLoadWithNoFileOrArgsReturnsDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Default()
	if cfg.ServerId != want.ServerId || cfg.WorkerCount != want.WorkerCount || cfg.TransmitPeriodMs != want.TransmitPeriodMs || cfg.LogLevel != want.LogLevel {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadMergesFileThenFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corekitd.json")
	if err := os.WriteFile(path, []byte(`{"worker_count": 4, "control_addr": "tcp://127.0.0.1:7711"}`), 0o644); err != nil {
		t.Fatalf("failed writing fixture config: %v", err)
	}

	cfg, err := Load(path, []string{"-transmit-period-ms=30"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WorkerCount != 4 {
		t.Fatalf("expected worker_count from file to survive, got %d", cfg.WorkerCount)
	}
	if cfg.ControlAddr != "tcp://127.0.0.1:7711" {
		t.Fatalf("expected control_addr from file to survive, got %q", cfg.ControlAddr)
	}
	if cfg.TransmitPeriodMs != 30 {
		t.Fatalf("expected flag to override transmit period, got %d", cfg.TransmitPeriodMs)
	}
}

func TestFlagsOverrideFileValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corekitd.json")
	if err := os.WriteFile(path, []byte(`{"worker_count": 4}`), 0o644); err != nil {
		t.Fatalf("failed writing fixture config: %v", err)
	}

	cfg, err := Load(path, []string{"-workers=9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WorkerCount != 9 {
		t.Fatalf("expected flag override to win, got %d", cfg.WorkerCount)
	}
}

func TestLoadParsesShortAndLongLevelFlags(t *testing.T) {
	short, err := Load("", []string{"-l=debug"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	long, err := Load("", []string{"-level=debug"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if short.LogLevel != mlog.DebugLevel || long.LogLevel != mlog.DebugLevel {
		t.Fatalf("expected both -l and -level to parse to debug, got %v / %v", short.LogLevel, long.LogLevel)
	}
}

func TestLoadParsesShortAndLongFileFlags(t *testing.T) {
	short, err := Load("", []string{"-f=/tmp/corekitd.log"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	long, err := Load("", []string{"-file=/tmp/corekitd.log"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if short.LogFile != "/tmp/corekitd.log" {
		t.Fatalf("expected -f to set LogFile, got %q", short.LogFile)
	}
	if long.LogFile != "/tmp/corekitd.log" {
		t.Fatalf("expected -file to set LogFile, got %q", long.LogFile)
	}
}

func TestLoadRejectsUnknownLevel(t *testing.T) {
	if _, err := Load("", []string{"-level=bogus"}); err == nil {
		t.Fatalf("expected an error for an unknown log level")
	}
}

func TestEtcdEndpointListSplitsAndTrims(t *testing.T) {
	cfg := Default()
	cfg.EtcdEndpoints = "http://a:2379, http://b:2379 ,http://c:2379"
	got := cfg.EtcdEndpointList()
	want := []string{"http://a:2379", "http://b:2379", "http://c:2379"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestEtcdEndpointListEmptyWhenUnconfigured(t *testing.T) {
	cfg := Default()
	if got := cfg.EtcdEndpointList(); got != nil {
		t.Fatalf("expected nil endpoint list when unconfigured, got %v", got)
	}
}

func TestDurationHelpersConvertMillisecondFields(t *testing.T) {
	cfg := Default()
	cfg.TransmitPeriodMs = 15
	cfg.TestTimeoutMs = 10
	cfg.ShutdownHardKillAfterSec = 5
	if cfg.TransmitPeriod().Milliseconds() != 15 {
		t.Fatalf("expected 15ms transmit period, got %s", cfg.TransmitPeriod())
	}
	if cfg.TestTimeout().Milliseconds() != 10 {
		t.Fatalf("expected 10ms test timeout, got %s", cfg.TestTimeout())
	}
	if cfg.ShutdownHardKillAfter().Seconds() != 5 {
		t.Fatalf("expected 5s hard-kill threshold, got %s", cfg.ShutdownHardKillAfter())
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json"), nil); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
