// Command corekitd wires the runtime together: config, logging, the
// timer service, the coordinator, its attached workers, and the optional
// control/peering planes, then blocks until shutdown is requested (by an OS
// signal, the control plane's shutdown command, or a peer's redis shutdown
// notice) before driving a bounded, two-phase shutdown.
//
// Grounded on original_source/src/main/main.cpp's wiring order (logger
// setup, shutdown-timer arming, manager construction and start, worker
// attachment, WaitForExit/WaitForShutdown, exit-code propagation).
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fixkme/corekit/config"
	"github.com/fixkme/corekit/control"
	"github.com/fixkme/corekit/coordinator"
	"github.com/fixkme/corekit/mlog"
	"github.com/fixkme/corekit/peering"
	"github.com/fixkme/corekit/signalwait"
	"github.com/fixkme/corekit/timersvc"
	"github.com/fixkme/corekit/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load("", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "corekitd: config error: %v\n", err)
		return 2
	}

	logCtx, stopLogging := context.WithCancel(context.Background())
	defer stopLogging()
	var logWg sync.WaitGroup
	if err := setupLogger(logCtx, &logWg, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "corekitd: logger setup failed: %v\n", err)
		return 2
	}
	defer logWg.Wait()

	mlog.Infof("corekitd starting, config:%s", cfg.JSONFormat())

	quitRing := make(chan struct{})
	defer close(quitRing)
	svc := timersvc.New()
	svc.Start(quitRing)

	coord := coordinator.New(svc)
	coord.SetTransmitPeriod(cfg.TransmitPeriod())
	coord.SetTestTimeout(cfg.TestTimeout())
	coord.Start()

	for i := 0; i < cfg.WorkerCount; i++ {
		name := fmt.Sprintf("worker-%d", i+1)
		w := worker.New(name, svc, &genericWorker{name: name}, 0)
		w.Start()
		coord.AttachWorker(name, w)
	}

	var ctrlServer *control.Server
	if cfg.ControlAddr != "" {
		ctrlServer = control.New(cfg.ControlAddr, coord)
		go func() {
			if err := ctrlServer.Run(); err != nil {
				mlog.Errorf("control server exited: %v", err)
			}
		}()
	}

	var registrar *peering.EtcdRegistrar
	if endpoints := cfg.EtcdEndpointList(); len(endpoints) > 0 {
		registrar, err = peering.NewEtcdRegistrar(endpoints, cfg.TransmitPeriod()*10, cfg.ServerId, cfg.SelfAddr, cfg.EtcdLeaseTTL)
		if err != nil {
			mlog.Errorf("peering: etcd registrar setup failed: %v", err)
		} else if err := registrar.Register(); err != nil {
			mlog.Errorf("peering: etcd registration failed: %v", err)
		}
	}

	var shutdownFanout *peering.RedisShutdownFanout
	if cfg.RedisAddr != "" {
		shutdownFanout = peering.NewRedisShutdownFanout(cfg.RedisAddr, cfg.ServerId)
		cancelSub := shutdownFanout.Subscribe(context.Background(), coord.RequestShutdown)
		defer cancelSub()
	}

	go signalwait.Wait(func() {
		coord.RequestShutdown()
		if shutdownFanout != nil {
			if err := shutdownFanout.Publish(context.Background()); err != nil {
				mlog.Warnf("peering: redis shutdown publish failed: %v", err)
			}
		}
	}, cfg.ShutdownHardKillAfter())

	coord.WaitForShutdown()

	if ctrlServer != nil {
		if err := ctrlServer.Stop(context.Background()); err != nil {
			mlog.Warnf("control server stop: %v", err)
		}
	}
	if registrar != nil {
		registrar.Close()
	}
	if shutdownFanout != nil {
		if err := shutdownFanout.Close(); err != nil {
			mlog.Warnf("peering: redis client close: %v", err)
		}
	}

	mlog.Infof("corekitd exiting, exit_code:%d", coord.ExitCode())
	return coord.ExitCode()
}

func setupLogger(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config) error {
	if cfg.LogFile == "" {
		return mlog.UseStdLogger(cfg.LogLevel)
	}
	dir := filepath.Dir(cfg.LogFile)
	base := filepath.Base(cfg.LogFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return mlog.UseDefaultLogger(ctx, wg, dir, name, cfg.LogLevel, true)
}
