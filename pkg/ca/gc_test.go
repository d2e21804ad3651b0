package ca

import (
	"context"
	"testing"

	"c2fs/pkg/core"
	"c2fs/pkg/types"
	"c2fs/pkg/vfs"
	"c2fs/pkg/vfs/vfstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reachable 独立地计算 master + 快照的可达集合，作为 GC 的对照
func reachable(t *testing.T, r *Root) map[types.Hash]bool {
	t.Helper()
	ctx := context.Background()
	out := map[types.Hash]bool{}
	roots, err := r.Roots(ctx)
	require.NoError(t, err)

	var walk func(id types.Hash)
	walk = func(id types.Hash) {
		if out[id] {
			return
		}
		out[id] = true
		obj, err := r.Store().Get(ctx, id)
		require.NoError(t, err)
		switch o := obj.(type) {
		case *core.Commit:
			walk(o.Tree())
		case *core.Tree:
			for _, e := range o.Entries {
				walk(e.Hash.Hash)
			}
		}
	}
	for _, id := range roots {
		walk(id)
	}
	return out
}

func allObjects(t *testing.T, r *Root) map[types.Hash]bool {
	t.Helper()
	out := map[types.Hash]bool{}
	require.NoError(t, r.Store().List(context.Background(), func(id types.Hash) error {
		out[id] = true
		return nil
	}))
	return out
}

func populate(t *testing.T, r *Root, h *Handler) {
	t.Helper()
	ctx := context.Background()
	vfstest.MustCreateFile(t, h, "f", "v1")
	d := vfstest.MustCreateDirectory(t, h, "d")
	vfstest.MustCreateFile(t, d, "g", "world")
	_, err := r.CreateSnapshot(ctx, "s")
	require.NoError(t, err)

	vfstest.MustCreateFile(t, h, "f", "v2")
	vfstest.MustCreateFile(t, h, "tmp", "garbage soon")
	require.NoError(t, h.RemoveFile(ctx, "tmp"))
	vfstest.MustCreateFile(t, d, "g", "world v2")
}

func TestCollector_TwoPhase(t *testing.T) {
	ctx := context.Background()
	r, h, _ := newMemRoot(t)
	populate(t, r, h)

	want := reachable(t, r)
	before := allObjects(t, r)
	require.Greater(t, len(before), len(want), "准备的数据里必须有垃圾")

	c, err := r.NewCollector(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, c.NumObjectsToCheck(), "master + 快照")

	// 标记未完成时不允许删除
	_, err = c.RemoveGarbageObjects(ctx)
	assert.ErrorIs(t, err, ErrMarkIncomplete)

	steps := 0
	for {
		more, err := c.CheckObject(ctx)
		require.NoError(t, err)
		if !more {
			break
		}
		steps++
	}
	assert.Zero(t, c.NumObjectsToCheck())
	assert.Equal(t, len(want), c.NumObjectsToKeep())
	assert.Equal(t, len(want), steps)
	assert.Zero(t, c.NumErrors())

	// dry run: 只标记不删除
	garbage, err := c.Garbage(ctx)
	require.NoError(t, err)
	assert.Len(t, garbage, len(before)-len(want))
	assert.Equal(t, before, allObjects(t, r))

	for {
		more, err := c.RemoveGarbageObjects(ctx)
		require.NoError(t, err)
		if !more {
			break
		}
	}
	assert.Equal(t, len(before)-len(want), c.NumObjectsRemoved())
	assert.Equal(t, want, allObjects(t, r), "删除后剩下的恰好是可达集合")

	// 两个视图依旧完整
	assert.Equal(t, "v2", vfstest.MustReadFile(t, h, "f"))
	snap, err := r.OpenSnapshot(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "v1", vfstest.MustReadFile(t, snap, "f"))
	d, err := vfs.OpenDirectory(ctx, snap, "d")
	require.NoError(t, err)
	assert.Equal(t, "world", vfstest.MustReadFile(t, d, "g"))

	// 第二轮没有可删的
	c2, err := r.NewCollector(ctx)
	require.NoError(t, err)
	require.NoError(t, c2.Mark(ctx))
	more, err := c2.RemoveGarbageObjects(ctx)
	require.NoError(t, err)
	assert.False(t, more)
}

func TestCollector_RemovingSnapshotFreesObjects(t *testing.T) {
	ctx := context.Background()
	r, h, _ := newMemRoot(t)
	populate(t, r, h)
	require.NoError(t, r.RemoveSnapshot(ctx, "s"))

	c, err := r.NewCollector(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Mark(ctx))
	for more := true; more; {
		more, err = c.RemoveGarbageObjects(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, reachable(t, r), allObjects(t, r))
	blob := core.CalculateBlobHash([]byte("v1"))
	ok, err := r.Store().Has(ctx, blob)
	require.NoError(t, err)
	assert.False(t, ok, "只被快照引用的 blob 已被回收")
}

func TestCollector_MissingObjectsCounted(t *testing.T) {
	ctx := context.Background()
	r, h, _ := newMemRoot(t)
	vfstest.MustCreateFile(t, h, "f", "lost")
	vfstest.MustCreateFile(t, h, "g", "kept")

	// 人为删掉一个可达的 blob
	require.NoError(t, r.Store().Delete(ctx, core.CalculateBlobHash([]byte("lost"))))

	c, err := r.NewCollector(ctx)
	require.NoError(t, err)
	c.AddCommit(types.Hash{0xde, 0xad}) // 不存在的根

	require.NoError(t, c.Mark(ctx))
	assert.Equal(t, 2, c.NumErrors())

	// 错误不影响其余对象的标记
	garbage, err := c.Garbage(ctx)
	require.NoError(t, err)
	for _, id := range garbage {
		assert.NotEqual(t, core.CalculateBlobHash([]byte("kept")), id)
	}
}

func TestCollector_CorruptReachableObjectIsKept(t *testing.T) {
	ctx := context.Background()
	r, h, backend := newMemRoot(t)
	vfstest.MustCreateDirectory(t, h, "d")
	sub, err := vfs.OpenWritable(ctx, h, "d")
	require.NoError(t, err)
	vfstest.MustCreateFile(t, sub, "x", "1")

	// 把 d 的 Tree 对象写坏
	root, err := r.commitTree(ctx, mustMaster(t, r))
	require.NoError(t, err)
	e, ok := root.Find("d")
	require.True(t, ok)
	shard, name := e.Hash.Hash.Shard()
	dir, err := vfs.WalkPath(ctx, backend, []string{"objects", shard})
	require.NoError(t, err)
	w, err := vfs.Writable(dir)
	require.NoError(t, err)
	_, err = w.CreateFile(ctx, name, []byte("not zlib"))
	require.NoError(t, err)

	c, err := r.NewCollector(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Mark(ctx))
	assert.Equal(t, 1, c.NumErrors())

	garbage, err := c.Garbage(ctx)
	require.NoError(t, err)
	assert.NotContains(t, garbage, e.Hash.Hash, "损坏但可达的对象不能删除")
}
