package cache

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"c2fs/pkg/core"
	"c2fs/pkg/storage/memory"
	"c2fs/pkg/storage/pool"
	"c2fs/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// SpyStore 统计底层方法被调用的次数，验证请求是否穿透了缓存
// -----------------------------------------------------------------------------
type SpyStore struct {
	*pool.Store
	hasCount int32
	putCount int32
}

func (s *SpyStore) Has(ctx context.Context, hash types.Hash) (bool, error) {
	atomic.AddInt32(&s.hasCount, 1)
	return s.Store.Has(ctx, hash)
}

func (s *SpyStore) Put(ctx context.Context, obj core.Object) error {
	atomic.AddInt32(&s.putCount, 1)
	return s.Store.Put(ctx, obj)
}

func newSpy(t *testing.T) *SpyStore {
	p, err := pool.NewStore(context.Background(), memory.New(), 0)
	require.NoError(t, err)
	return &SpyStore{Store: p}
}

func redisOrSkip(t *testing.T) string {
	redisAddr := "localhost:6379"
	conn, err := net.DialTimeout("tcp", redisAddr, 1*time.Second)
	if err != nil {
		t.Skipf("Skipping Redis integration test: %v", err)
	}
	conn.Close()
	return fmt.Sprintf("redis://%s/0", redisAddr)
}

func TestCachedStore_Integration(t *testing.T) {
	url := redisOrSkip(t)
	ctx := context.Background()
	spy := newSpy(t)

	cs, err := NewCachedStore(spy, Config{RedisURL: url, TTL: time.Hour, Namespace: t.Name()})
	require.NoError(t, err)
	defer cs.Close()

	obj := core.NewBlob([]byte("cached"))
	cs.client.Del(ctx, cs.cacheKey(obj.ID()))

	// --- Step 1: Cache Miss ---
	exists, err := cs.Has(ctx, obj.ID())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.hasCount), "Backend Has() should be called on miss")

	// --- Step 2: Put (Write-Through) ---
	require.NoError(t, cs.Put(ctx, obj))
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.putCount))

	val, err := cs.client.Exists(ctx, cs.cacheKey(obj.ID())).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), val, "Redis key should be set after Put")

	// --- Step 3: Cache Hit ---
	before := atomic.LoadInt32(&spy.hasCount)
	exists, err = cs.Has(ctx, obj.ID())
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, before, atomic.LoadInt32(&spy.hasCount), "Backend Has() should NOT be called on hit")

	// --- Step 4: Delete 失效缓存 ---
	require.NoError(t, cs.Delete(ctx, obj.ID()))
	exists, err = cs.Has(ctx, obj.ID())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNewCachedStore_BadURL(t *testing.T) {
	_, err := NewCachedStore(newSpy(t), Config{RedisURL: "not-a-url"})
	assert.Error(t, err)
}
