package ca

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"c2fs/pkg/core"
	"c2fs/pkg/refs"
	"c2fs/pkg/storage"
	"c2fs/pkg/types"
	"c2fs/pkg/vfs"
)

var ErrMarkIncomplete = errors.New("gc: mark phase not finished")

type pending struct {
	id   types.Hash
	blob bool // 叶子只检查存在性，不解码
}

// Collector 是两阶段的标记清除
//
// 阶段一反复调用 CheckObject 直到返回 false，得到可达集合；
// 阶段二反复调用 RemoveGarbageObjects，每次删除一个不可达对象。
// 只执行阶段一就是 dry run。
//
// 缺失或损坏的对象只累加错误计数，不会中断标记。
// 损坏但可达的对象不会被当作垃圾删除。
type Collector struct {
	store   storage.ObjectStore
	counter refs.Counter
	log     *slog.Logger

	queue  []pending
	seen   map[types.Hash]struct{}
	keep   map[types.Hash]struct{}
	broken map[types.Hash]struct{}
	errors int

	swept   bool
	garbage []types.Hash
	removed int
}

// NewCollector 创建空的 Collector；counter 可以为 nil
func NewCollector(store storage.ObjectStore, counter refs.Counter, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		store:   store,
		counter: counter,
		log:     log,
		seen:    make(map[types.Hash]struct{}),
		keep:    make(map[types.Hash]struct{}),
		broken:  make(map[types.Hash]struct{}),
	}
}

// AddCommit 把一个可达性根加入队列
func (c *Collector) AddCommit(id types.Hash) {
	c.push(id, false)
}

func (c *Collector) push(id types.Hash, blob bool) {
	if id.IsZero() {
		return
	}
	if _, ok := c.seen[id]; ok {
		return
	}
	c.seen[id] = struct{}{}
	c.queue = append(c.queue, pending{id: id, blob: blob})
}

// CheckObject 处理队列中的一个对象，队列为空时返回 false
func (c *Collector) CheckObject(ctx context.Context) (bool, error) {
	if len(c.queue) == 0 {
		return false, nil
	}
	p := c.queue[0]
	c.queue = c.queue[1:]

	if p.blob {
		ok, err := c.store.Has(ctx, p.id)
		if err != nil {
			return false, err
		}
		if !ok {
			c.fail(p.id, vfs.ErrNotFound)
			return true, nil
		}
		c.keep[p.id] = struct{}{}
		return true, nil
	}

	obj, err := c.store.Get(ctx, p.id)
	if err != nil {
		switch vfs.KindOf(err) {
		case vfs.KindNotFound, vfs.KindCorruptObject:
			c.fail(p.id, err)
			return true, nil
		}
		return false, err
	}
	c.keep[p.id] = struct{}{}

	switch o := obj.(type) {
	case *core.Commit:
		c.push(o.Tree(), false)
	case *core.Tree:
		for _, e := range o.Entries {
			c.push(e.Hash.Hash, e.Type == core.EntryFile)
		}
	}
	return true, nil
}

func (c *Collector) fail(id types.Hash, err error) {
	c.errors++
	c.broken[id] = struct{}{}
	c.log.Debug("gc: unreadable object", slog.String("id", id.String()), slog.Any("err", err))
}

// Mark 一次性跑完阶段一
func (c *Collector) Mark(ctx context.Context) error {
	for {
		more, err := c.CheckObject(ctx)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func (c *Collector) NumObjectsToCheck() int { return len(c.queue) }
func (c *Collector) NumObjectsToKeep() int  { return len(c.keep) }
func (c *Collector) NumErrors() int         { return c.errors }
func (c *Collector) NumObjectsRemoved() int { return c.removed }

// Garbage 列出 (尚未删除的) 不可达对象
func (c *Collector) Garbage(ctx context.Context) ([]types.Hash, error) {
	if err := c.sweep(ctx); err != nil {
		return nil, err
	}
	return append([]types.Hash(nil), c.garbage...), nil
}

func (c *Collector) sweep(ctx context.Context) error {
	if len(c.queue) > 0 {
		return ErrMarkIncomplete
	}
	if c.swept {
		return nil
	}
	err := c.store.List(ctx, func(id types.Hash) error {
		if _, ok := c.keep[id]; ok {
			return nil
		}
		if _, ok := c.broken[id]; ok {
			return nil
		}
		c.garbage = append(c.garbage, id)
		return nil
	})
	if err != nil {
		c.garbage = nil
		return err
	}
	sort.Slice(c.garbage, func(i, j int) bool { return c.garbage[i].String() < c.garbage[j].String() })
	c.swept = true
	return nil
}

// RemoveGarbageObjects 删除一个不可达对象，没有可删的时返回 false
func (c *Collector) RemoveGarbageObjects(ctx context.Context) (bool, error) {
	if err := c.sweep(ctx); err != nil {
		return false, err
	}
	if len(c.garbage) == 0 {
		return false, nil
	}
	id := c.garbage[0]
	if err := c.store.Delete(ctx, id); err != nil {
		return false, err
	}
	c.garbage = c.garbage[1:]
	c.removed++

	if c.counter != nil {
		if err := c.counter.Delete(ctx, id); err != nil {
			c.log.Warn("gc: refcount cleanup failed", slog.String("id", id.String()), slog.Any("err", err))
		}
	}
	c.log.Debug("gc: removed", slog.String("id", id.String()))
	return true, nil
}
