package refs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"c2fs/pkg/types"
	"c2fs/pkg/vfs"
)

const RefCountsDir = "refcounts"

// Counter 维护对象的引用计数
// 计数只是提前回收的线索，删除对象的唯一依据仍然是标记清除
type Counter interface {
	Get(ctx context.Context, id types.Hash) (int64, error)
	Add(ctx context.Context, id types.Hash, delta int64) (int64, error)
	Delete(ctx context.Context, id types.Hash) error
	// Range 遍历所有有记录的对象 (包括计数为 0 的)
	Range(ctx context.Context, fn func(id types.Hash, n int64) error) error
	Close() error
}

// PoolCounter 把计数存成对象池里的文本文件: refcounts/XX/YYYY
type PoolCounter struct {
	root vfs.WritableDirectoryHandler
}

func NewPoolCounter(ctx context.Context, root vfs.WritableDirectoryHandler) (*PoolCounter, error) {
	if _, err := root.CreateDirectory(ctx, RefCountsDir); err != nil {
		return nil, fmt.Errorf("failed to create refcounts dir: %w", err)
	}
	return &PoolCounter{root: root}, nil
}

func (c *PoolCounter) dir(ctx context.Context) (vfs.WritableDirectoryHandler, error) {
	return vfs.OpenWritable(ctx, c.root, RefCountsDir)
}

func (c *PoolCounter) Get(ctx context.Context, id types.Hash) (int64, error) {
	d, err := c.dir(ctx)
	if err != nil {
		return 0, err
	}
	prefix, name := id.Shard()
	sh, err := vfs.OpenDirectory(ctx, d, prefix)
	if err != nil {
		if vfs.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	data, err := sh.GetFileByName(ctx, name)
	if err != nil {
		if vfs.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, vfs.NewError(vfs.KindCorruptObject, "refcount", id.String(), err)
	}
	return n, nil
}

// Add 修改计数，结果不会小于 0
func (c *PoolCounter) Add(ctx context.Context, id types.Hash, delta int64) (int64, error) {
	n, err := c.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	n = max(n+delta, 0)

	d, err := c.dir(ctx)
	if err != nil {
		return 0, err
	}
	prefix, name := id.Shard()
	sh, err := vfs.EnsureDirectory(ctx, d, prefix)
	if err != nil {
		return 0, err
	}
	if _, err := sh.CreateFile(ctx, name, []byte(strconv.FormatInt(n, 10)+"\n")); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *PoolCounter) Delete(ctx context.Context, id types.Hash) error {
	d, err := c.dir(ctx)
	if err != nil {
		return err
	}
	prefix, name := id.Shard()
	sh, err := vfs.OpenWritable(ctx, d, prefix)
	if err != nil {
		if vfs.IsNotFound(err) {
			return nil
		}
		return err
	}
	if err := sh.RemoveFile(ctx, name); err != nil && !vfs.IsNotFound(err) {
		return err
	}
	if err := d.RemoveDirectory(ctx, prefix); err != nil && vfs.KindOf(err) != vfs.KindNotEmpty {
		return err
	}
	return nil
}

func (c *PoolCounter) Range(ctx context.Context, fn func(types.Hash, int64) error) error {
	d, err := c.dir(ctx)
	if err != nil {
		return err
	}
	var ids []types.Hash
	var shards []string
	if err := d.ReadContent(ctx, func(info vfs.Info) error {
		if info.IsDir() {
			shards = append(shards, info.Name)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, prefix := range shards {
		sh, err := vfs.OpenDirectory(ctx, d, prefix)
		if err != nil {
			return err
		}
		if err := sh.ReadContent(ctx, func(info vfs.Info) error {
			if h, err := types.ParseHash(prefix + info.Name); err == nil {
				ids = append(ids, h)
			}
			return nil
		}); err != nil {
			return err
		}
	}

	for _, id := range ids {
		n, err := c.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(id, n); err != nil {
			return err
		}
	}
	return nil
}

func (c *PoolCounter) Close() error { return nil }
