package refs

import (
	"context"
	"crypto/sha1"
	"testing"

	"c2fs/pkg/storage/memory"
	"c2fs/pkg/types"
	"c2fs/pkg/vfs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockHash(input string) types.Hash {
	return types.Hash(sha1.Sum([]byte(input)))
}

func setupManager(t *testing.T) (*Manager, *memory.Handler) {
	t.Helper()
	root := memory.New()
	mgr := NewManager(root)
	require.NoError(t, mgr.Init(context.Background()))
	return mgr, root
}

func TestManager_InitLayout(t *testing.T) {
	ctx := context.Background()
	mgr, root := setupManager(t)

	head, err := root.GetFileByName(ctx, HeadFile)
	require.NoError(t, err)
	assert.Equal(t, "ref: refs/heads/master\n", string(head))

	_, err = vfs.WalkPath(ctx, root, []string{RefsDir, HeadsDir})
	require.NoError(t, err)

	// Init 可重复执行
	require.NoError(t, mgr.Init(ctx))
}

func TestManager_Master(t *testing.T) {
	ctx := context.Background()
	mgr, root := setupManager(t)

	// 1. 空仓库: master 为 nil
	h, err := mgr.GetMaster(ctx)
	require.NoError(t, err)
	assert.True(t, h.IsZero())

	// 2. 更新并读回
	h1 := mockHash("v1")
	require.NoError(t, mgr.UpdateMaster(ctx, h1))
	got, err := mgr.GetMaster(ctx)
	require.NoError(t, err)
	assert.Equal(t, h1, got)

	// 3. 物理格式: 40 位 hex + 换行
	heads, err := vfs.WalkPath(ctx, root, []string{RefsDir, HeadsDir})
	require.NoError(t, err)
	raw, err := heads.GetFileByName(ctx, MasterRef)
	require.NoError(t, err)
	assert.Equal(t, h1.String()+"\n", string(raw))

	// 4. 非法内容视为 nil
	w, err := vfs.Writable(heads)
	require.NoError(t, err)
	_, err = w.CreateFile(ctx, MasterRef, []byte("not-a-hash\n"))
	require.NoError(t, err)
	got, err = mgr.GetMaster(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestManager_Snapshots(t *testing.T) {
	ctx := context.Background()
	mgr, _ := setupManager(t)

	_, err := mgr.GetSnapshot(ctx, "s")
	assert.ErrorIs(t, err, ErrNoRef)

	require.NoError(t, mgr.SetSnapshot(ctx, "b", mockHash("b")))
	require.NoError(t, mgr.SetSnapshot(ctx, "a", mockHash("a")))

	got, err := mgr.GetSnapshot(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, mockHash("a"), got)

	names, err := mgr.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, mgr.RemoveSnapshot(ctx, "a"))
	assert.ErrorIs(t, mgr.RemoveSnapshot(ctx, "a"), ErrNoRef)

	names, err = mgr.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)

	// 保留名与非法名
	assert.Equal(t, vfs.KindPermissionDenied, vfs.KindOf(mgr.SetSnapshot(ctx, HeadsDir, mockHash("x"))))
	assert.Equal(t, vfs.KindPermissionDenied, vfs.KindOf(mgr.SetSnapshot(ctx, "a/b", mockHash("x"))))
}
