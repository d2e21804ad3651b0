package disk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"c2fs/pkg/vfs"
	"c2fs/pkg/vfs/vfstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	h, err := NewHandler(t.TempDir())
	require.NoError(t, err)
	return h
}

func TestDiskHandler_Suite(t *testing.T) {
	vfstest.RunHandlerSuite(t, func(t *testing.T) vfs.WritableDirectoryHandler {
		return newTestHandler(t)
	})
}

func TestDiskHandler_WritesRealFiles(t *testing.T) {
	tmpDir := t.TempDir()
	h, err := NewHandler(tmpDir)
	require.NoError(t, err)

	sub := vfstest.MustCreateDirectory(t, h, "d")
	vfstest.MustCreateFile(t, sub, "g", "world")

	// 验证文件是否真的存在于物理磁盘
	content, err := os.ReadFile(filepath.Join(tmpDir, "d", "g"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(content))

	// 原子写入不能留下临时文件
	entries, err := os.ReadDir(filepath.Join(tmpDir, "d"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDiskHandler_SeesExternalChanges(t *testing.T) {
	tmpDir := t.TempDir()
	h, err := NewHandler(tmpDir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ext"), []byte("outside"), 0644))
	assert.Equal(t, "outside", vfstest.MustReadFile(t, h, "ext"))
}

func TestNewHandler_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := NewHandler(filepath.Join(tmpDir, "missing"))
	assert.True(t, vfs.IsNotFound(err))

	file := filepath.Join(tmpDir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = NewHandler(file)
	assert.Equal(t, vfs.KindTypeConflict, vfs.KindOf(err))
}

func TestDiskHandler_CopyFileHasNoFastPath(t *testing.T) {
	h := newTestHandler(t)
	info := vfstest.MustCreateFile(t, h, "a", "1")

	_, ok, err := h.CopyFile(context.Background(), h, info, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiskHandler_GetFileStaysInside(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "secret"), []byte("s3cr3t"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(base, "share"), 0755))

	h, err := NewHandler(filepath.Join(base, "share"))
	require.NoError(t, err)

	data, err := h.GetFile(context.Background(), vfs.Info{Name: "../secret", Type: vfs.TypeFile})
	assert.Nil(t, data)
	assert.Equal(t, vfs.KindPermissionDenied, vfs.KindOf(err))
}
