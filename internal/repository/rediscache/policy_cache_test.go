package rediscache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"github.com/ferrychris/policyweb-sub000/internal/repository/memory"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingBackend считает обращения к List основного хранилища.
type countingBackend struct {
	*memory.PolicyRepo
	lists atomic.Int32
}

func (b *countingBackend) List(ctx context.Context, userID string) ([]domain.GeneratedPolicy, error) {
	b.lists.Add(1)
	return b.PolicyRepo.List(ctx, userID)
}

func setup(t *testing.T) (*PolicyCache, *countingBackend, *miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	backend := &countingBackend{PolicyRepo: memory.NewPolicyRepo()}
	return NewPolicyCache(backend, rdb, time.Minute, zap.NewNop()), backend, mr, rdb
}

func TestListIsCachedUntilMutation(t *testing.T) {
	ctx := context.Background()
	c, backend, mr, _ := setup(t)

	_, err := c.Create(ctx, "u1", domain.NewPolicy{Title: "A", Type: "ethics", Content: "# a"})
	require.NoError(t, err)

	list, err := c.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, mr.Exists(infra.PolicyListKey("u1")))

	list, err = c.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int32(1), backend.lists.Load())

	title := "A2"
	_, err = c.Update(ctx, list[0].ID, domain.PolicyPatch{Title: &title})
	require.NoError(t, err)
	assert.False(t, mr.Exists(infra.PolicyListKey("u1")))

	list, err = c.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "A2", list[0].Title)
	assert.Equal(t, int32(2), backend.lists.Load())

	require.NoError(t, c.Delete(ctx, list[0].ID))
	list, err = c.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMutationsArePublished(t *testing.T) {
	ctx := context.Background()
	c, _, _, rdb := setup(t)

	sub := rdb.Subscribe(ctx, infra.RedisChanPolicyEvents)
	defer sub.Close()
	_, err := sub.Receive(ctx) // подтверждение подписки
	require.NoError(t, err)

	gp, err := c.Create(ctx, "u1", domain.NewPolicy{Title: "A", Type: "ethics", Content: "# a"})
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "created:u1:"+gp.ID, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("policy event not published")
	}
}

func TestRedisOutageFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	c, backend, mr, _ := setup(t)
	_, err := c.Create(ctx, "u1", domain.NewPolicy{Title: "A", Type: "ethics", Content: "# a"})
	require.NoError(t, err)

	mr.Close()
	list, err := c.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, int32(1), backend.lists.Load())
}

func TestListenerDropsListRacedIntoCache(t *testing.T) {
	c, _, mr, rdb := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.StartListener(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(infra.RedisChanPolicyEvents)[infra.RedisChanPolicyEvents] == 1
	}, 2*time.Second, 10*time.Millisecond)

	// другой инстанс положил в кэш список, прочитанный до мутации
	key := infra.PolicyListKey("u1")
	require.NoError(t, mr.Set(key, "[]"))
	require.NoError(t, rdb.Publish(ctx, infra.RedisChanPolicyEvents, EventCreated+":u1:p1").Err())

	assert.Eventually(t, func() bool { return !mr.Exists(key) }, 2*time.Second, 10*time.Millisecond)

	// мусор в канале игнорируется, чужие ключи не трогаются
	require.NoError(t, mr.Set(infra.PolicyListKey("u2"), "[]"))
	require.NoError(t, rdb.Publish(ctx, infra.RedisChanPolicyEvents, "garbage").Err())
	time.Sleep(50 * time.Millisecond)
	assert.True(t, mr.Exists(infra.PolicyListKey("u2")))
}

func TestParseEvent(t *testing.T) {
	action, userID, ok := parseEvent("updated:u1:p1")
	require.True(t, ok)
	assert.Equal(t, EventUpdated, action)
	assert.Equal(t, "u1", userID)

	for _, bad := range []string{"", "updated", "updated:u1", ":u1:p1", "updated::p1"} {
		_, _, ok := parseEvent(bad)
		assert.False(t, ok, bad)
	}
}
