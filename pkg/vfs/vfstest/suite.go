// Package vfstest 提供所有后端共用的一致性测试
// 每个后端在自己的 _test.go 里调用 RunHandlerSuite
package vfstest

import (
	"context"
	"testing"

	"c2fs/pkg/vfs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory 为每个子测试创建一个全新的、空的根目录 handler
type Factory func(t *testing.T) vfs.WritableDirectoryHandler

// RunHandlerSuite 运行完整的 handler 行为测试
func RunHandlerSuite(t *testing.T, newHandler Factory) {
	t.Run("CreateAndRead", func(t *testing.T) { testCreateAndRead(t, newHandler(t)) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, newHandler(t)) })
	t.Run("FindItem", func(t *testing.T) { testFindItem(t, newHandler(t)) })
	t.Run("ReadContent", func(t *testing.T) { testReadContent(t, newHandler(t)) })
	t.Run("Directories", func(t *testing.T) { testDirectories(t, newHandler(t)) })
	t.Run("RemoveNonEmpty", func(t *testing.T) { testRemoveNonEmpty(t, newHandler(t)) })
	t.Run("TypeConflicts", func(t *testing.T) { testTypeConflicts(t, newHandler(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newHandler(t)) })
	t.Run("EmptyFile", func(t *testing.T) { testEmptyFile(t, newHandler(t)) })
	t.Run("EscapingName", func(t *testing.T) { testEscapingName(t, newHandler(t)) })
}

// MustCreateFile 创建文件，失败直接终止测试
func MustCreateFile(t *testing.T, h vfs.WritableDirectoryHandler, name, content string) vfs.Info {
	t.Helper()
	info, err := h.CreateFile(context.Background(), name, []byte(content))
	require.NoError(t, err, "createFile %s", name)
	return info
}

// MustCreateDirectory 创建目录并返回可写的子 handler
func MustCreateDirectory(t *testing.T, h vfs.WritableDirectoryHandler, name string) vfs.WritableDirectoryHandler {
	t.Helper()
	ctx := context.Background()
	info, err := h.CreateDirectory(ctx, name)
	require.NoError(t, err, "createDirectory %s", name)
	sub, err := h.GetDirectory(ctx, info)
	require.NoError(t, err)
	w, err := vfs.Writable(sub)
	require.NoError(t, err)
	return w
}

// MustReadFile 按名字读取文件内容
func MustReadFile(t *testing.T, h vfs.DirectoryHandler, name string) string {
	t.Helper()
	data, err := h.GetFileByName(context.Background(), name)
	require.NoError(t, err, "getFileByName %s", name)
	return string(data)
}

// Names 列出当前目录下的名字 (按枚举顺序)
func Names(t *testing.T, h vfs.DirectoryHandler) []string {
	t.Helper()
	var names []string
	err := h.ReadContent(context.Background(), func(info vfs.Info) error {
		names = append(names, info.Name)
		return nil
	})
	require.NoError(t, err)
	return names
}

func testCreateAndRead(t *testing.T, h vfs.WritableDirectoryHandler) {
	info := MustCreateFile(t, h, "f", "hello")
	assert.Equal(t, "f", info.Name)
	assert.Equal(t, vfs.TypeFile, info.Type)

	assert.Equal(t, "hello", MustReadFile(t, h, "f"))

	data, err := h.GetFile(context.Background(), info)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func testOverwrite(t *testing.T, h vfs.WritableDirectoryHandler) {
	MustCreateFile(t, h, "f", "first")
	MustCreateFile(t, h, "f", "second, longer")
	assert.Equal(t, "second, longer", MustReadFile(t, h, "f"))
	assert.Equal(t, []string{"f"}, Names(t, h))
}

func testFindItem(t *testing.T, h vfs.WritableDirectoryHandler) {
	ctx := context.Background()
	MustCreateFile(t, h, "file.txt", "12345")
	MustCreateDirectory(t, h, "dir")

	info, ok, err := h.FindItem(ctx, "file.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vfs.TypeFile, info.Type)
	if info.HasSize {
		assert.Equal(t, int64(5), info.Size)
	}

	info, ok, err = h.FindItem(ctx, "dir")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vfs.TypeDirectory, info.Type)

	_, ok, err = h.FindItem(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	// 默认实现必须与后端实现一致
	scanned, ok, err := vfs.FindByScan(ctx, h, "file.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vfs.TypeFile, scanned.Type)
}

func testReadContent(t *testing.T, h vfs.WritableDirectoryHandler) {
	MustCreateFile(t, h, "b", "2")
	MustCreateFile(t, h, "a", "1")
	MustCreateDirectory(t, h, "c")

	assert.ElementsMatch(t, []string{"a", "b", "c"}, Names(t, h))

	// 回调返回错误时立即终止
	stop := assert.AnError
	count := 0
	err := h.ReadContent(context.Background(), func(vfs.Info) error {
		count++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, count)
}

func testDirectories(t *testing.T, h vfs.WritableDirectoryHandler) {
	ctx := context.Background()
	sub := MustCreateDirectory(t, h, "d")
	MustCreateFile(t, sub, "g", "world")

	// 重复创建同名目录是幂等的
	info, err := h.CreateDirectory(ctx, "d")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// 重新打开，能看到之前的写入
	again, err := vfs.OpenDirectory(ctx, h, "d")
	require.NoError(t, err)
	assert.Equal(t, "world", MustReadFile(t, again, "g"))

	deep := MustCreateDirectory(t, sub, "e")
	MustCreateFile(t, deep, "h", "deep")
	walked, err := vfs.WalkPath(ctx, h, []string{"d", "e"})
	require.NoError(t, err)
	assert.Equal(t, "deep", MustReadFile(t, walked, "h"))

	require.NoError(t, deep.RemoveFile(ctx, "h"))
	require.NoError(t, sub.RemoveDirectory(ctx, "e"))
	assert.Equal(t, []string{"g"}, Names(t, sub))
}

func testRemoveNonEmpty(t *testing.T, h vfs.WritableDirectoryHandler) {
	ctx := context.Background()
	sub := MustCreateDirectory(t, h, "d")
	MustCreateFile(t, sub, "x", "1")

	err := h.RemoveDirectory(ctx, "d")
	require.Error(t, err)
	assert.Equal(t, vfs.KindNotEmpty, vfs.KindOf(err))
	assert.ErrorIs(t, err, vfs.ErrNotEmpty)

	// 失败的操作不改变状态
	assert.Equal(t, []string{"d"}, Names(t, h))
}

func testTypeConflicts(t *testing.T, h vfs.WritableDirectoryHandler) {
	ctx := context.Background()
	MustCreateFile(t, h, "file", "x")
	MustCreateDirectory(t, h, "dir")

	_, err := h.CreateDirectory(ctx, "file")
	assert.Equal(t, vfs.KindAlreadyExists, vfs.KindOf(err))

	_, err = h.CreateFile(ctx, "dir", []byte("x"))
	assert.Equal(t, vfs.KindAlreadyExists, vfs.KindOf(err))

	err = h.RemoveFile(ctx, "dir")
	assert.Equal(t, vfs.KindTypeConflict, vfs.KindOf(err))

	err = h.RemoveDirectory(ctx, "file")
	assert.Equal(t, vfs.KindTypeConflict, vfs.KindOf(err))

	_, err = vfs.OpenDirectory(ctx, h, "file")
	assert.Equal(t, vfs.KindTypeConflict, vfs.KindOf(err))

	assert.ElementsMatch(t, []string{"file", "dir"}, Names(t, h))
}

func testNotFound(t *testing.T, h vfs.WritableDirectoryHandler) {
	ctx := context.Background()

	_, err := h.GetFileByName(ctx, "nope")
	assert.True(t, vfs.IsNotFound(err), "got %v", err)

	err = h.RemoveFile(ctx, "nope")
	assert.True(t, vfs.IsNotFound(err), "got %v", err)

	err = h.RemoveDirectory(ctx, "nope")
	assert.True(t, vfs.IsNotFound(err), "got %v", err)

	_, err = vfs.WalkPath(ctx, h, []string{"a", "b"})
	assert.True(t, vfs.IsNotFound(err), "got %v", err)
}

func testEmptyFile(t *testing.T, h vfs.WritableDirectoryHandler) {
	MustCreateFile(t, h, "empty", "")
	assert.Equal(t, "", MustReadFile(t, h, "empty"))
}

// testEscapingName: 子目录句柄不能经由 ".." 读到父目录的文件
func testEscapingName(t *testing.T, h vfs.WritableDirectoryHandler) {
	ctx := context.Background()
	MustCreateFile(t, h, "secret", "s3cr3t")
	sub := MustCreateDirectory(t, h, "share")

	for _, name := range []string{"../secret", "..", "a/b", ""} {
		data, err := sub.GetFile(ctx, vfs.Info{Name: name, Type: vfs.TypeFile})
		assert.Error(t, err, "getFile %q", name)
		assert.Empty(t, data, "getFile %q", name)
	}
}
