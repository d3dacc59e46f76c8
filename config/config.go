// Package config parses corekitd's command-line surface and, optionally, a
// JSON config file layered underneath it — flags always win. Mirrors the
// teacher's framework/config/config.go (JSON-file-backed AppConfig with an
// env-override hook), trimmed to this daemon's actual knobs and with the
// env-override callback replaced by stdlib flag.Parse, since corekitd reads
// its environment only through flags.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fixkme/corekit/mlog"
)

// Config holds every knob corekitd needs to wire up its runtime.
type Config struct {
	ServerId int `json:"server_id"`

	LogLevel mlog.Level `json:"-"`
	LogFile  string     `json:"log_file"`

	WorkerCount      int `json:"worker_count"`
	TransmitPeriodMs int `json:"transmit_period_ms"`
	TestTimeoutMs    int `json:"test_timeout_ms"`

	ControlAddr string `json:"control_addr"` // empty disables the control plane

	EtcdEndpoints string `json:"etcd_endpoints"` // comma-separated; empty disables peer registration
	EtcdLeaseTTL  int64  `json:"etcd_lease_ttl"` // seconds
	SelfAddr      string `json:"self_addr"`      // address this instance advertises under its etcd registration
	RedisAddr     string `json:"redis_addr"`     // empty disables the shutdown fan-out

	ShutdownHardKillAfterSec int `json:"shutdown_hard_kill_after_sec"`

	levelFlag string
}

// Default returns the configuration corekitd runs with when neither a
// config file nor overriding flags are supplied.
func Default() *Config {
	return &Config{
		ServerId:                 1,
		LogLevel:                 mlog.InfoLevel,
		LogFile:                  "",
		WorkerCount:              1,
		TransmitPeriodMs:         15,
		TestTimeoutMs:            10,
		ControlAddr:              "",
		EtcdEndpoints:            "",
		EtcdLeaseTTL:             5,
		SelfAddr:                 "",
		RedisAddr:                "",
		ShutdownHardKillAfterSec: 5,
	}
}

// Load builds a Config from an optional JSON file (configFile may be empty)
// and then applies flag overrides parsed from args (typically
// os.Args[1:]). The external flag surface matches what a deployed operator
// invokes corekitd with directly: --level/-l, --file/-f, --control, --etcd,
// --redis; everything else is additional tuning exposed for completeness.
func Load(configFile string, args []string) (*Config, error) {
	cfg := Default()
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	fs := flag.NewFlagSet("corekitd", flag.ContinueOnError)
	levelDefault := levelName(cfg.LogLevel)
	bindDual(fs, &cfg.levelFlag, "level", "l", levelDefault, "log level (t|trace d|debug i|info w|warn e|error c|critical)")
	bindDual(fs, &cfg.LogFile, "file", "f", cfg.LogFile, "optional log file path; stdout-only when empty")

	fs.StringVar(&cfg.ControlAddr, "control", cfg.ControlAddr, "admin control-plane listen address (empty disables it)")
	fs.StringVar(&cfg.EtcdEndpoints, "etcd", cfg.EtcdEndpoints, "comma-separated etcd endpoints (empty disables peer registration)")
	fs.Int64Var(&cfg.EtcdLeaseTTL, "etcd-lease-ttl", cfg.EtcdLeaseTTL, "etcd registration lease TTL in seconds")
	fs.StringVar(&cfg.SelfAddr, "self-addr", cfg.SelfAddr, "address this instance advertises under its etcd registration")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "redis address for shutdown fan-out (empty disables it)")

	fs.IntVar(&cfg.ServerId, "server-id", cfg.ServerId, "this instance's numeric id, used in peer-registration and shutdown-fanout keys")
	fs.IntVar(&cfg.WorkerCount, "workers", cfg.WorkerCount, "number of worker threads to attach to the coordinator")
	fs.IntVar(&cfg.TransmitPeriodMs, "transmit-period-ms", cfg.TransmitPeriodMs, "coordinator's periodic work fan-out interval")
	fs.IntVar(&cfg.TestTimeoutMs, "test-timeout-ms", cfg.TestTimeoutMs, "per-tick worker test-event sleep duration")
	fs.IntVar(&cfg.ShutdownHardKillAfterSec, "shutdown-hard-kill-after-sec", cfg.ShutdownHardKillAfterSec, "force-kill the process if it is still alive this many seconds after a repeat shutdown signal")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	level, err := parseLevel(cfg.levelFlag)
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	return cfg, nil
}

// bindDual registers the same variable under both a long and short flag
// name, matching the "--level|-l" style external interface.
func bindDual(fs *flag.FlagSet, p *string, long, short, value, usage string) {
	fs.StringVar(p, long, value, usage)
	fs.StringVar(p, short, value, usage)
}

func parseLevel(s string) (mlog.Level, error) {
	switch strings.ToLower(s) {
	case "t", "trace":
		return mlog.TraceLevel, nil
	case "d", "debug":
		return mlog.DebugLevel, nil
	case "i", "info", "":
		return mlog.InfoLevel, nil
	case "w", "warn", "warning":
		return mlog.WarnLevel, nil
	case "e", "error":
		return mlog.ErrorLevel, nil
	case "c", "critical":
		return mlog.CriticalLevel, nil
	default:
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
}

func levelName(l mlog.Level) string {
	switch l {
	case mlog.TraceLevel:
		return "trace"
	case mlog.DebugLevel:
		return "debug"
	case mlog.NoticeLevel:
		return "notice"
	case mlog.WarnLevel:
		return "warn"
	case mlog.ErrorLevel:
		return "error"
	case mlog.CriticalLevel:
		return "critical"
	case mlog.FatalLevel:
		return "fatal"
	default:
		return "info"
	}
}

func (c *Config) TransmitPeriod() time.Duration {
	return time.Duration(c.TransmitPeriodMs) * time.Millisecond
}

func (c *Config) TestTimeout() time.Duration {
	return time.Duration(c.TestTimeoutMs) * time.Millisecond
}

func (c *Config) ShutdownHardKillAfter() time.Duration {
	return time.Duration(c.ShutdownHardKillAfterSec) * time.Second
}

// EtcdEndpointList splits the comma-separated EtcdEndpoints field.
func (c *Config) EtcdEndpointList() []string {
	if c.EtcdEndpoints == "" {
		return nil
	}
	parts := strings.Split(c.EtcdEndpoints, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JSONFormat renders the config for startup logging, matching the
// teacher's AppConfig.JsonFormat helper.
func (c *Config) JSONFormat() string {
	if c == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
