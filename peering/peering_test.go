package peering

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

type fakeCmdable struct {
	redis.Cmdable
	published []string
}

func (f *fakeCmdable) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.published = append(f.published, message.(string))
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func TestRedisShutdownFanoutPublishSendsOwnEntity(t *testing.T) {
	fake := &fakeCmdable{}
	f := &RedisShutdownFanout{rdb: fake, entity: "self-entity"}
	if err := f.Publish(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.published) != 1 || fake.published[0] != "self-entity" {
		t.Fatalf("expected the fanout's own entity id to be published, got %v", fake.published)
	}
}

func TestRedisShutdownFanoutSubscribeNoopWithoutRealClient(t *testing.T) {
	fake := &fakeCmdable{}
	f := &RedisShutdownFanout{rdb: fake, entity: "self-entity"}
	called := false
	cancel := f.Subscribe(context.Background(), func() { called = true })
	cancel()
	if called {
		t.Fatalf("expected onShutdown not to fire when subscribe is unavailable")
	}
}

func TestRedisShutdownFanoutCloseNoopWithoutCloser(t *testing.T) {
	f := &RedisShutdownFanout{rdb: &fakeCmdable{}, entity: "x"}
	if err := f.Close(); err != nil {
		t.Fatalf("expected nil error closing a client without a Close method, got %v", err)
	}
}

func TestShutdownChannelIsScopedByServerId(t *testing.T) {
	if got, want := shutdownChannel(7), "corekit:shutdown:7"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if shutdownChannel(1) == shutdownChannel(2) {
		t.Fatalf("expected distinct server ids to produce distinct channels")
	}
}
