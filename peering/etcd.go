// Package peering implements spec.md's optional distributed extensions
// (§4.7): best-effort self-registration in etcd and a redis pub/sub
// shutdown fan-out. Neither touches runtime state — both are no-ops when
// unconfigured, and failures here are logged, never fatal, since the core
// runtime (C1-C5) must keep working standalone.
//
// Grounded on servicediscovery/impl/etcd/discovery.go: lease Grant + Put +
// KeepAlive-drain-goroutine shape, trimmed to self-registration only (no
// watch/cache of other peers, since nothing here resolves peer addresses).
package peering

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/fixkme/corekit/mlog"
)

const defaultLeaseTTLSeconds = 5

// EtcdRegistrar keeps one self-registration key alive in etcd for as long
// as the process runs, re-leased automatically by etcd's client-side
// keepalive.
type EtcdRegistrar struct {
	cli      *clientv3.Client
	key      string
	selfAddr string
	leaseTTL int64
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewEtcdRegistrar dials etcd and prepares (but does not yet publish) a
// registration key of the form "corekit/<serverId>/<instanceID>" -> selfAddr.
func NewEtcdRegistrar(endpoints []string, dialTimeout time.Duration, serverId int, selfAddr string, leaseTTLSeconds int64) (*EtcdRegistrar, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	if leaseTTLSeconds <= 0 {
		leaseTTLSeconds = defaultLeaseTTLSeconds
	}
	ctx, cancel := context.WithCancel(context.Background())
	instanceId := uuid.New().String()
	key := fmt.Sprintf("corekit/%d/%s", serverId, instanceId)
	return &EtcdRegistrar{
		cli:      cli,
		key:      key,
		selfAddr: selfAddr,
		leaseTTL: leaseTTLSeconds,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Register grants a lease, publishes the registration key under it, and
// starts draining the keepalive channel in the background.
func (r *EtcdRegistrar) Register() error {
	resp, err := r.cli.Grant(r.ctx, r.leaseTTL)
	if err != nil {
		return err
	}
	mlog.Infof("peering: etcd grant lease id:%x ttl:%ds", resp.ID, r.leaseTTL)

	if _, err := r.cli.Put(r.ctx, r.key, r.selfAddr, clientv3.WithLease(resp.ID)); err != nil {
		return err
	}
	mlog.Infof("peering: etcd registered %s -> %s", r.key, r.selfAddr)

	ch, err := r.cli.KeepAlive(r.ctx, resp.ID)
	if err != nil {
		return err
	}
	go r.drainKeepAlive(ch)
	return nil
}

func (r *EtcdRegistrar) drainKeepAlive(ch <-chan *clientv3.LeaseKeepAliveResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			mlog.Errorf("peering: etcd keepalive recover error %v", rec)
		}
	}()
	for {
		_, ok := <-ch
		if !ok {
			mlog.Infof("peering: etcd keepalive channel for %s closed", r.key)
			return
		}
	}
}

// Close deregisters and releases the etcd client. Safe to call even if
// Register was never called.
func (r *EtcdRegistrar) Close() {
	r.cancel()
	if _, err := r.cli.Delete(context.Background(), r.key); err != nil {
		mlog.Warnf("peering: etcd delete on close: %v", err)
	}
	if err := r.cli.Close(); err != nil {
		mlog.Warnf("peering: etcd client close: %v", err)
	}
}
