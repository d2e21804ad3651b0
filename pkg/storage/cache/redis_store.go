package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"c2fs/pkg/core"
	"c2fs/pkg/storage"
	"c2fs/pkg/types"

	"github.com/redis/go-redis/v9"
)

// CachedStore 是一个装饰器，它为底层的 storage.ObjectStore 添加 Redis 存在性缓存
type CachedStore struct {
	backend storage.ObjectStore
	client  *redis.Client
	ttl     time.Duration
	prefix  string
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
	// Namespace 区分不同的对象池，同一个 Redis 可以服务多个 ca 根
	Namespace string
}

func NewCachedStore(backend storage.ObjectStore, cfg Config) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedStore{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
		prefix:  "c2fs:obj:" + cfg.Namespace + ":",
	}, nil
}

func (s *CachedStore) cacheKey(hash types.Hash) string {
	return s.prefix + hash.String()
}

// Has 优先查 Redis
func (s *CachedStore) Has(ctx context.Context, hash types.Hash) (bool, error) {
	key := s.cacheKey(hash)

	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		// 缓存故障降级为无缓存模式
		slog.Warn("redis exists failed", "err", err)
	} else if val > 0 {
		return true, nil
	}

	found, err := s.backend.Has(ctx, hash)
	if err != nil {
		return false, err
	}

	if found {
		// 异步回填，不阻塞主流程
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.client.Set(fillCtx, key, "1", s.ttl)
		}()
	}

	return found, nil
}

func (s *CachedStore) Put(ctx context.Context, obj core.Object) error {
	exists, err := s.Has(ctx, obj.ID())
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := s.backend.Put(ctx, obj); err != nil {
		return err
	}

	// 只有底层写成功了，才写 Redis
	if err := s.client.Set(ctx, s.cacheKey(obj.ID()), "1", s.ttl).Err(); err != nil {
		slog.Warn("redis set failed", "err", err)
	}
	return nil
}

// Get 透传，只缓存存在性
func (s *CachedStore) Get(ctx context.Context, hash types.Hash) (core.Object, error) {
	return s.backend.Get(ctx, hash)
}

// Delete 先失效缓存再删除，避免 Has 返回已删除的对象
func (s *CachedStore) Delete(ctx context.Context, hash types.Hash) error {
	if err := s.client.Del(ctx, s.cacheKey(hash)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return s.backend.Delete(ctx, hash)
}

func (s *CachedStore) List(ctx context.Context, fn func(types.Hash) error) error {
	return s.backend.List(ctx, fn)
}

func (s *CachedStore) ExpandHash(ctx context.Context, short types.HashPrefix) (types.Hash, error) {
	return s.backend.ExpandHash(ctx, short)
}

func (s *CachedStore) Close() error {
	return s.client.Close()
}
