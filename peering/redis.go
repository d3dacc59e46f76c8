package peering

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"

	"github.com/fixkme/corekit/mlog"
)

// shutdownChannel builds the per-server-id channel peers publish to when
// they begin an orderly shutdown, so sibling instances sharing the same
// ServerId can start their own shutdown in step rather than discovering
// the peer is gone via timeout.
func shutdownChannel(serverId int) string {
	return fmt.Sprintf("corekit:shutdown:%d", serverId)
}

// RedisShutdownFanout publishes and/or listens for shutdown notices on its
// server id's channel. entity identifies this process's own publishes so a
// subscriber can ignore its own echo.
//
// Grounded on lock/redlock.go's redis.Cmdable client construction and its
// xid.New() fallback-id pattern, repurposed from mutual-exclusion locking
// to pub/sub notification since this plane coordinates shutdown timing,
// not access to a shared resource.
type RedisShutdownFanout struct {
	rdb     redis.Cmdable
	channel string
	entity  string
}

// NewRedisShutdownFanout dials a single redis instance at addr, scoped to
// serverId's shutdown channel.
func NewRedisShutdownFanout(addr string, serverId int) *RedisShutdownFanout {
	return &RedisShutdownFanout{
		rdb:     redis.NewClient(&redis.Options{Addr: addr}),
		channel: shutdownChannel(serverId),
		entity:  xid.New().String(),
	}
}

// Publish announces this process's shutdown to any subscribed peers.
func (f *RedisShutdownFanout) Publish(ctx context.Context) error {
	return f.rdb.Publish(ctx, f.channel, f.entity).Err()
}

// Subscribe listens for shutdown notices from other peers and invokes
// onShutdown for each one not originated by this process. It returns a
// cancel func that stops the subscription; callers should defer it.
func (f *RedisShutdownFanout) Subscribe(ctx context.Context, onShutdown func()) func() {
	sub, ok := f.rdb.(*redis.Client)
	if !ok {
		mlog.Warnf("peering: redis subscribe unavailable on this client, skipping")
		return func() {}
	}
	pubsub := sub.Subscribe(ctx, f.channel)
	ch := pubsub.Channel()
	done := make(chan struct{})

	go func() {
		defer func() {
			if r := recover(); r != nil {
				mlog.Errorf("peering: redis subscribe recover error %v", r)
			}
		}()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload == f.entity {
					continue
				}
				mlog.Infof("peering: shutdown notice received from peer %s", msg.Payload)
				onShutdown()
			}
		}
	}()

	return func() {
		close(done)
		pubsub.Close()
	}
}

// Close releases the underlying redis client, if it owns one.
func (f *RedisShutdownFanout) Close() error {
	if closer, ok := f.rdb.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
