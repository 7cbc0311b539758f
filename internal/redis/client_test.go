package redis

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibs-source/stream-consumer/internal/codec"
	"github.com/ibs-source/stream-consumer/internal/config"
	"github.com/ibs-source/stream-consumer/internal/log"
)

const testGroup = "g1"

func testConfig(addr, consumer string) *config.RedisConfig {
	return &config.RedisConfig{
		Address:      addr,
		Group:        testGroup,
		Consumer:     consumer,
		BlockTimeout: 50 * time.Millisecond,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PingTimeout:  time.Second,
		ClaimIdle:    30 * time.Second,
	}
}

func newTestClient(t *testing.T, mr *miniredis.Miniredis, consumer string) *Client {
	t.Helper()
	c := NewClient(testConfig(mr.Addr(), consumer), "test", log.NewWithOutput(io.Discard))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Accessors(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, "c1")

	assert.Equal(t, "test", c.Name())
	assert.Equal(t, testGroup, c.Group())
	assert.Equal(t, "c1", c.Consumer())
	assert.NoError(t, c.Ping(context.Background()))
}

func TestPing_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, "c1")
	mr.Close()

	assert.Error(t, c.Ping(context.Background()))
}

func TestEnsureGroup_Idempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, "c1")
	ctx := context.Background()

	created, err := c.EnsureGroup(ctx, "orders")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, mr.Exists("orders"), "MKSTREAM must create the stream")

	created, err = c.EnsureGroup(ctx, "orders")
	require.NoError(t, err)
	assert.False(t, created, "second call must report the existing group")
}

func TestEnsureGroup_WrongType(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, "c1")
	require.NoError(t, mr.Set("orders", "not-a-stream"))

	_, err := c.EnsureGroup(context.Background(), "orders")
	require.Error(t, err)
	assert.False(t, isGroupExists(err))
}

func TestIsGroupExists(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, "c1")
	ctx := context.Background()

	require.NoError(t, c.rdb.XGroupCreateMkStream(ctx, "orders", testGroup, "$").Err())
	err := c.rdb.XGroupCreateMkStream(ctx, "orders", testGroup, "$").Err()

	assert.True(t, isGroupExists(err))
	assert.False(t, isGroupExists(errors.New("BUSYGROUP Consumer Group name already exists")),
		"only server replies count")
	assert.False(t, isGroupExists(nil))
}

func TestReadGroup_MultiStream(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, "c1")
	ctx := context.Background()

	for _, s := range []string{"a", "b"} {
		_, err := c.EnsureGroup(ctx, s)
		require.NoError(t, err)
	}

	idA, err := c.Add(ctx, "a", codec.Fields{"k", "1"})
	require.NoError(t, err)
	idB, err := c.Add(ctx, "b", codec.Fields{"k", "2"})
	require.NoError(t, err)

	batch, err := c.ReadGroup(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, batch.Streams, 2)
	assert.Equal(t, 2, batch.Len())

	got := map[string]string{}
	for _, s := range batch.Streams {
		require.Len(t, s.Entries, 1)
		got[s.Stream] = s.Entries[0].ID
	}
	assert.Equal(t, idA, got["a"])
	assert.Equal(t, idB, got["b"])
	assert.Equal(t, "1", batch.Streams[0].Entries[0].Values["k"])

	// Delivered entries are not re-delivered with ">"
	batch, err = c.ReadGroup(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Len())
}

func TestReadGroup_StartsAtTail(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, "c1")
	ctx := context.Background()

	_, err := mr.XAdd("orders", "*", []string{"old", "1"})
	require.NoError(t, err)

	_, err = c.EnsureGroup(ctx, "orders")
	require.NoError(t, err)

	batch, err := c.ReadGroup(ctx, []string{"orders"})
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Len(), "entries older than the group must not be delivered")
}

func TestReadGroup_Count(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(mr.Addr(), "c1")
	cfg.BatchSize = 1
	c := NewClient(cfg, "test", log.NewWithOutput(io.Discard))
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	_, err := c.EnsureGroup(ctx, "orders")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := c.Add(ctx, "orders", codec.Fields{"n", "x"})
		require.NoError(t, err)
	}

	batch, err := c.ReadGroup(ctx, []string{"orders"})
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Len())
}

func TestReadGroup_NoStreams(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, "c1")

	batch, err := c.ReadGroup(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Len())
}

func TestReadGroup_MissingGroup(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, "c1")

	_, err := c.ReadGroup(context.Background(), []string{"orders"})
	require.Error(t, err)
	var rerr redis.Error
	assert.True(t, errors.As(err, &rerr), "server error replies must stay typed")
}

func TestAckAndDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, "c1")
	ctx := context.Background()

	_, err := c.EnsureGroup(ctx, "orders")
	require.NoError(t, err)
	id, err := c.Add(ctx, "orders", codec.Fields{"k", "v"})
	require.NoError(t, err)
	_, err = c.ReadGroup(ctx, []string{"orders"})
	require.NoError(t, err)

	pending, err := c.rdb.XPending(ctx, "orders", testGroup).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)

	n, err := c.Ack(ctx, "orders", id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Ack(ctx, "orders", id)
	require.NoError(t, err, "re-ack must be tolerated")
	assert.Equal(t, int64(0), n)

	n, err = c.Delete(ctx, "orders", id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Delete(ctx, "orders", id)
	require.NoError(t, err, "re-delete must be tolerated")
	assert.Equal(t, int64(0), n)

	pending, err = c.rdb.XPending(ctx, "orders", testGroup).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)

	length, err := c.rdb.XLen(ctx, "orders").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestAdd(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, "c1")
	ctx := context.Background()

	id, err := c.Add(ctx, "out", codec.Fields{"a", "1", "b", "2"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := c.rdb.XRange(ctx, "out", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]interface{}{"a": "1", "b": "2"}, msgs[0].Values)

	_, err = c.Add(ctx, "out", nil)
	assert.Error(t, err)
}

func TestClaimIdle(t *testing.T) {
	mr := miniredis.RunT(t)
	start := time.Now()
	mr.SetTime(start)

	dead := newTestClient(t, mr, "dead")
	self := newTestClient(t, mr, "self")
	ctx := context.Background()

	_, err := self.EnsureGroup(ctx, "orders")
	require.NoError(t, err)
	id, err := self.Add(ctx, "orders", codec.Fields{"k", "v"})
	require.NoError(t, err)

	batch, err := dead.ReadGroup(ctx, []string{"orders"})
	require.NoError(t, err)
	require.Equal(t, 1, batch.Len())

	// Not idle long enough yet
	claimed, err := self.ClaimIdle(ctx, []string{"orders"})
	require.NoError(t, err)
	assert.Equal(t, 0, claimed.Len())

	mr.SetTime(start.Add(time.Minute))

	claimed, err = self.ClaimIdle(ctx, []string{"orders"})
	require.NoError(t, err)
	require.Equal(t, 1, claimed.Len())
	assert.Equal(t, "orders", claimed.Streams[0].Stream)
	assert.Equal(t, id, claimed.Streams[0].Entries[0].ID)

	pending, err := self.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: "orders", Group: testGroup, Start: "-", End: "+", Count: 10,
	}).Result()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "self", pending[0].Consumer)
}

func TestCleanupDeadConsumers(t *testing.T) {
	mr := miniredis.RunT(t)
	start := time.Now()
	mr.SetTime(start)

	self := newTestClient(t, mr, "self")
	ctx := context.Background()

	_, err := self.EnsureGroup(ctx, "orders")
	require.NoError(t, err)

	// XCLAIM of an unknown id registers the consumer without pending entries
	for _, name := range []string{"self", "dead"} {
		require.NoError(t, self.rdb.XClaim(ctx, &redis.XClaimArgs{
			Stream: "orders", Group: testGroup, Consumer: name, Messages: []string{"0-1"},
		}).Err())
	}

	mr.SetTime(start.Add(10 * time.Minute))

	removed := self.CleanupDeadConsumers(ctx, []string{"orders", "missing"}, 5*time.Minute)
	assert.Equal(t, 1, removed)

	consumers, err := self.rdb.XInfoConsumers(ctx, "orders", testGroup).Result()
	require.NoError(t, err)
	require.Len(t, consumers, 1)
	assert.Equal(t, "self", consumers[0].Name)
}

func TestClose_Idempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewClient(testConfig(mr.Addr(), "c1"), "test", log.NewWithOutput(io.Discard))

	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(context.Background()), redis.ErrClosed)
}
