// Package ca 把任意可写目录包装成 Git 风格的内容寻址存储
//
// 对象池布局:
//
//	HEAD                 "ref: refs/heads/master\n"
//	refs/heads/master    40 位 hex + "\n"
//	refs/<snapshot>      同上
//	objects/XX/YYYY      zlib 压缩的对象
//	refcounts/XX/YYYY    引用计数 (未使用 BadgerDB 时)
//	c2fs-pool            格式标记
package ca

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"c2fs/pkg/core"
	"c2fs/pkg/refs"
	"c2fs/pkg/storage"
	"c2fs/pkg/storage/pool"
	"c2fs/pkg/types"
	"c2fs/pkg/vfs"
)

const (
	MarkerFile    = "c2fs-pool"
	MarkerContent = "c2fs-ca 1\n"

	// MasterRefName 是 master 在提交索引里使用的名字
	MasterRefName = "refs/heads/master"
)

// CommitIndexer 在 ref 移动或删除后收到通知 (例如 meta 包的数据库索引)
type CommitIndexer interface {
	IndexCommit(ctx context.Context, c *core.Commit, ref string, previous types.Hash) error
	RemoveRef(ctx context.Context, ref string, previous types.Hash) error
}

type Options struct {
	// Store 覆盖默认的对象存储 (默认是 pool 上的 objects/)
	Store storage.ObjectStore
	// Counter 覆盖默认的引用计数 (默认是 pool 上的 refcounts/)
	Counter refs.Counter
	// CompressionLevel 仅在使用默认 Store 时生效
	CompressionLevel int
	Indexer          CommitIndexer
	Logger           *slog.Logger
}

// Root 是一个打开的 CA 对象池
type Root struct {
	backend vfs.WritableDirectoryHandler
	store   storage.ObjectStore
	refs    *refs.Manager
	counter refs.Counter
	indexer CommitIndexer
	log     *slog.Logger
}

// NewRoot 确保对象池布局存在，并无条件写入格式标记
func NewRoot(ctx context.Context, backend vfs.WritableDirectoryHandler, opts Options) (*Root, error) {
	mgr := refs.NewManager(backend)
	if err := mgr.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to init refs: %w", err)
	}

	store := opts.Store
	if store == nil {
		s, err := pool.NewStore(ctx, backend, opts.CompressionLevel)
		if err != nil {
			return nil, err
		}
		store = s
	}

	if _, err := backend.CreateFile(ctx, MarkerFile, []byte(MarkerContent)); err != nil {
		return nil, fmt.Errorf("failed to write pool marker: %w", err)
	}

	counter := opts.Counter
	if counter == nil {
		c, err := refs.NewPoolCounter(ctx, backend)
		if err != nil {
			return nil, err
		}
		counter = c
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Root{
		backend: backend,
		store:   store,
		refs:    mgr,
		counter: counter,
		indexer: opts.Indexer,
		log:     log,
	}, nil
}

func (r *Root) Store() storage.ObjectStore { return r.store }

func (r *Root) Close() error { return r.counter.Close() }

// GetMasterCommitID 读取 master，不存在或非法时返回 NilHash
func (r *Root) GetMasterCommitID(ctx context.Context) (types.Hash, error) {
	return r.refs.GetMaster(ctx)
}

// CreateRootHandler 返回跟随 master 的可写根目录
// 每次操作都重新读取 master，其它实例的写入立即可见
func (r *Root) CreateRootHandler(ctx context.Context) (*Handler, error) {
	master, err := r.GetMasterCommitID(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := r.commitTree(ctx, master); err != nil {
		return nil, err
	}
	return &Handler{root: r}, nil
}

func (r *Root) loadCommit(ctx context.Context, id types.Hash) (*core.Commit, error) {
	obj, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c, ok := obj.(*core.Commit)
	if !ok {
		return nil, vfs.NewError(vfs.KindCorruptObject, "loadCommit", id.String(), fmt.Errorf("object is a %s", obj.Type()))
	}
	return c, nil
}

func (r *Root) loadTree(ctx context.Context, id types.Hash) (*core.Tree, error) {
	obj, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t, ok := obj.(*core.Tree)
	if !ok {
		return nil, vfs.NewError(vfs.KindCorruptObject, "loadTree", id.String(), fmt.Errorf("object is a %s", obj.Type()))
	}
	return t, nil
}

// commitTree 返回 commit 指向的根 Tree，nil commit 对应空目录
func (r *Root) commitTree(ctx context.Context, commit types.Hash) (*core.Tree, error) {
	if commit.IsZero() {
		return core.EmptyTree, nil
	}
	c, err := r.loadCommit(ctx, commit)
	if err != nil {
		return nil, err
	}
	return r.loadTree(ctx, c.Tree())
}

// publish 写入新 commit 并移动 master
// ref 更新是最后一步，此前写入的对象在 GC 看来都是不可达的
func (r *Root) publish(ctx context.Context, previous types.Hash, tree *core.Tree, msg string) (*core.Commit, error) {
	c, err := core.NewCommit(tree.ID(), msg)
	if err != nil {
		return nil, err
	}
	if err := r.store.Put(ctx, c); err != nil {
		return nil, err
	}
	if err := r.refs.UpdateMaster(ctx, c.ID()); err != nil {
		return nil, fmt.Errorf("failed to update master: %w", err)
	}

	r.moveRef(ctx, c.ID(), previous)
	r.log.Debug("master moved", slog.String("from", previous.String()), slog.String("to", c.ID().String()))
	r.index(ctx, c, MasterRefName, previous)
	return c, nil
}

// moveRef 调整引用计数: 新目标 +1，旧目标 -1
// 计数只是线索，失败只记日志
func (r *Root) moveRef(ctx context.Context, to, from types.Hash) {
	if to == from {
		return
	}
	if !to.IsZero() {
		if _, err := r.counter.Add(ctx, to, 1); err != nil {
			r.log.Warn("refcount increment failed", slog.String("id", to.String()), slog.Any("err", err))
		}
	}
	if !from.IsZero() {
		if _, err := r.counter.Add(ctx, from, -1); err != nil {
			r.log.Warn("refcount decrement failed", slog.String("id", from.String()), slog.Any("err", err))
		}
	}
}

func (r *Root) index(ctx context.Context, c *core.Commit, ref string, previous types.Hash) {
	if r.indexer == nil {
		return
	}
	if err := r.indexer.IndexCommit(ctx, c, ref, previous); err != nil {
		r.log.Warn("commit index failed", slog.String("commit", c.ID().String()), slog.Any("err", err))
	}
}

func (r *Root) unindex(ctx context.Context, ref string, previous types.Hash) {
	if r.indexer == nil {
		return
	}
	if err := r.indexer.RemoveRef(ctx, ref, previous); err != nil {
		r.log.Warn("commit index failed", slog.String("ref", ref), slog.Any("err", err))
	}
}

// --- 快照 ---

// SetSnapshotCommitID 让快照 name 指向 id，id 必须是已存在的 commit
func (r *Root) SetSnapshotCommitID(ctx context.Context, name string, id types.Hash) error {
	c, err := r.loadCommit(ctx, id)
	if err != nil {
		return err
	}
	old, err := r.refs.GetSnapshot(ctx, name)
	if err != nil && !errors.Is(err, refs.ErrNoRef) {
		return err
	}
	if err := r.refs.SetSnapshot(ctx, name, id); err != nil {
		return err
	}
	r.moveRef(ctx, id, old)
	r.index(ctx, c, refs.RefsDir+"/"+name, old)
	return nil
}

// GetSnapshotCommitID 返回快照指向的 commit，不存在时 ok 为 false
func (r *Root) GetSnapshotCommitID(ctx context.Context, name string) (types.Hash, bool, error) {
	id, err := r.refs.GetSnapshot(ctx, name)
	if errors.Is(err, refs.ErrNoRef) {
		return types.NilHash, false, nil
	}
	if err != nil {
		return types.NilHash, false, err
	}
	return id, !id.IsZero(), nil
}

func (r *Root) RemoveSnapshot(ctx context.Context, name string) error {
	old, err := r.refs.GetSnapshot(ctx, name)
	if err != nil {
		if errors.Is(err, refs.ErrNoRef) {
			return vfs.NewError(vfs.KindNotFound, "removeSnapshot", name, nil)
		}
		return err
	}
	if err := r.refs.RemoveSnapshot(ctx, name); err != nil {
		return err
	}
	r.moveRef(ctx, types.NilHash, old)
	r.unindex(ctx, refs.RefsDir+"/"+name, old)
	return nil
}

func (r *Root) ListSnapshots(ctx context.Context) ([]string, error) {
	return r.refs.ListSnapshots(ctx)
}

// CreateSnapshot 把当前 master 记为快照 name
// 空对象池会先生成一个指向空目录的 commit
func (r *Root) CreateSnapshot(ctx context.Context, name string) (types.Hash, error) {
	master, err := r.GetMasterCommitID(ctx)
	if err != nil {
		return types.NilHash, err
	}
	if master.IsZero() {
		if err := r.store.Put(ctx, core.EmptyTree); err != nil {
			return types.NilHash, err
		}
		c, err := core.NewCommit(core.EmptyTree.ID(), "empty")
		if err != nil {
			return types.NilHash, err
		}
		if err := r.store.Put(ctx, c); err != nil {
			return types.NilHash, err
		}
		master = c.ID()
	}
	if err := r.SetSnapshotCommitID(ctx, name, master); err != nil {
		return types.NilHash, err
	}
	return master, nil
}

// OpenSnapshot 返回只读的快照根目录
func (r *Root) OpenSnapshot(ctx context.Context, name string) (*Handler, error) {
	id, ok, err := r.GetSnapshotCommitID(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vfs.NewError(vfs.KindNotFound, "openSnapshot", name, nil)
	}
	if _, err := r.commitTree(ctx, id); err != nil {
		return nil, err
	}
	return &Handler{root: r, pinned: id, snapshot: name}, nil
}

// --- 引用计数 ---

// RefCount 返回 id 的引用计数 (指向它的 ref 个数)
func (r *Root) RefCount(ctx context.Context, id types.Hash) (int64, error) {
	return r.counter.Get(ctx, id)
}

// UnreferencedCommits 返回计数已降到 0 的 commit，即提前回收的候选
func (r *Root) UnreferencedCommits(ctx context.Context) ([]types.Hash, error) {
	var out []types.Hash
	err := r.counter.Range(ctx, func(id types.Hash, n int64) error {
		if n <= 0 {
			out = append(out, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// Roots 返回 GC 的可达性根: master 加上所有快照
func (r *Root) Roots(ctx context.Context) ([]types.Hash, error) {
	var roots []types.Hash
	master, err := r.GetMasterCommitID(ctx)
	if err != nil {
		return nil, err
	}
	if !master.IsZero() {
		roots = append(roots, master)
	}
	names, err := r.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		id, ok, err := r.GetSnapshotCommitID(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			roots = append(roots, id)
		}
	}
	return roots, nil
}

// NewCollector 创建一个以当前所有 ref 为根的 Collector
func (r *Root) NewCollector(ctx context.Context) (*Collector, error) {
	roots, err := r.Roots(ctx)
	if err != nil {
		return nil, err
	}
	c := NewCollector(r.store, r.counter, r.log)
	for _, id := range roots {
		c.AddCommit(id)
	}
	return c, nil
}
