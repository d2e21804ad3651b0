package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"c2fs/pkg/vfs"
)

// Handler 实现了 vfs.WritableDirectoryHandler，与本地目录一一对应
type Handler struct {
	rootPath string // 比如: /srv/share/photos
}

var _ vfs.WritableDirectoryHandler = (*Handler)(nil)

// NewHandler 打开一个已存在的本地目录
func NewHandler(root string) (*Handler, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, mapError("open", root, err)
	}
	if !st.IsDir() {
		return nil, vfs.NewError(vfs.KindTypeConflict, "open", root, errors.New("not a directory"))
	}
	return &Handler{rootPath: abs}, nil
}

// Path 返回对应的本地路径
func (h *Handler) Path() string { return h.rootPath }

func (h *Handler) path(name string) string {
	return filepath.Join(h.rootPath, name)
}

// mapError 把 os 错误映射为 vfs 错误分类
func mapError(op, name string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return vfs.NewError(vfs.KindNotFound, op, name, err)
	case errors.Is(err, fs.ErrExist):
		return vfs.NewError(vfs.KindAlreadyExists, op, name, err)
	case errors.Is(err, fs.ErrPermission):
		return vfs.NewError(vfs.KindPermissionDenied, op, name, err)
	default:
		return vfs.NewError(vfs.KindIO, op, name, err)
	}
}

func toInfo(name string, st fs.FileInfo) vfs.Info {
	if st.IsDir() {
		return vfs.Info{Name: name, Type: vfs.TypeDirectory}
	}
	if st.Mode().IsRegular() {
		return vfs.Info{Name: name, Type: vfs.TypeFile, Size: st.Size(), HasSize: true}
	}
	return vfs.Info{Name: name, Type: vfs.TypeUnknown}
}

func (h *Handler) GetFileByName(ctx context.Context, name string) ([]byte, error) {
	return vfs.ReadFileByName(ctx, h, name)
}

// GetFile 整个文件读入内存，而不是 mmap
// 这样 I/O 错误总是以 error 返回，不会变成 SIGBUS
func (h *Handler) GetFile(ctx context.Context, info vfs.Info) ([]byte, error) {
	if err := vfs.CheckName("getFile", info.Name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(h.path(info.Name))
	if err != nil {
		return nil, mapError("getFile", info.Name, err)
	}
	return data, nil
}

func (h *Handler) FindItem(ctx context.Context, name string) (vfs.Info, bool, error) {
	if !vfs.ValidName(name) {
		return vfs.Info{}, false, nil
	}
	// Lstat: 符号链接不跟随，显示为 Unknown
	st, err := os.Lstat(h.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return vfs.Info{}, false, nil
	}
	if err != nil {
		return vfs.Info{}, false, mapError("findItem", name, err)
	}
	return toInfo(name, st), true, nil
}

func (h *Handler) ReadContent(ctx context.Context, fn func(vfs.Info) error) error {
	entries, err := os.ReadDir(h.rootPath)
	if err != nil {
		return mapError("readContent", h.rootPath, err)
	}
	// os.ReadDir 已经按文件名排序
	for _, e := range entries {
		st, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue // 列举期间被删掉了
		}
		if err != nil {
			return mapError("readContent", e.Name(), err)
		}
		if err := fn(toInfo(e.Name(), st)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) GetDirectory(ctx context.Context, info vfs.Info) (vfs.DirectoryHandler, error) {
	if err := vfs.CheckName("getDirectory", info.Name); err != nil {
		return nil, err
	}
	return NewHandler(h.path(info.Name))
}

// CreateFile 原子写入 (Atomic Write)
// 先写到同目录下的临时文件，然后 Rename。
// 这样保证要么是旧内容，要么是完整的新内容。
func (h *Handler) CreateFile(ctx context.Context, name string, data []byte) (vfs.Info, error) {
	if err := vfs.CheckName("createFile", name); err != nil {
		return vfs.Info{}, err
	}
	target := h.path(name)
	if st, err := os.Lstat(target); err == nil && st.IsDir() {
		return vfs.Info{}, vfs.NewError(vfs.KindAlreadyExists, "createFile", name, errors.New("directory exists"))
	}

	tempFile, err := os.CreateTemp(h.rootPath, ".c2fs-tmp-*")
	if err != nil {
		return vfs.Info{}, mapError("createFile", name, err)
	}
	// 成功 Rename 之后这个删除是无害的
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return vfs.Info{}, mapError("createFile", name, err)
	}
	if err := tempFile.Close(); err != nil {
		return vfs.Info{}, mapError("createFile", name, err)
	}
	if err := os.Chmod(tempFile.Name(), 0644); err != nil {
		return vfs.Info{}, mapError("createFile", name, err)
	}
	if err := os.Rename(tempFile.Name(), target); err != nil {
		return vfs.Info{}, mapError("createFile", name, err)
	}
	return vfs.Info{Name: name, Type: vfs.TypeFile, Size: int64(len(data)), HasSize: true}, nil
}

func (h *Handler) RemoveFile(ctx context.Context, name string) error {
	if err := vfs.CheckName("removeFile", name); err != nil {
		return err
	}
	st, err := os.Lstat(h.path(name))
	if err != nil {
		return mapError("removeFile", name, err)
	}
	if st.IsDir() {
		return vfs.NewError(vfs.KindTypeConflict, "removeFile", name, errors.New("is a directory"))
	}
	if err := os.Remove(h.path(name)); err != nil {
		return mapError("removeFile", name, err)
	}
	return nil
}

func (h *Handler) CreateDirectory(ctx context.Context, name string) (vfs.Info, error) {
	if err := vfs.CheckName("createDirectory", name); err != nil {
		return vfs.Info{}, err
	}
	err := os.Mkdir(h.path(name), 0755)
	if errors.Is(err, fs.ErrExist) {
		st, statErr := os.Lstat(h.path(name))
		if statErr == nil && st.IsDir() {
			return vfs.Info{Name: name, Type: vfs.TypeDirectory}, nil
		}
		return vfs.Info{}, vfs.NewError(vfs.KindAlreadyExists, "createDirectory", name, errors.New("file exists"))
	}
	if err != nil {
		return vfs.Info{}, mapError("createDirectory", name, err)
	}
	return vfs.Info{Name: name, Type: vfs.TypeDirectory}, nil
}

func (h *Handler) RemoveDirectory(ctx context.Context, name string) error {
	if err := vfs.CheckName("removeDirectory", name); err != nil {
		return err
	}
	p := h.path(name)
	st, err := os.Lstat(p)
	if err != nil {
		return mapError("removeDirectory", name, err)
	}
	if !st.IsDir() {
		return vfs.NewError(vfs.KindTypeConflict, "removeDirectory", name, errors.New("not a directory"))
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return mapError("removeDirectory", name, err)
	}
	if len(entries) > 0 {
		return vfs.NewError(vfs.KindNotEmpty, "removeDirectory", name, nil)
	}
	if err := os.Remove(p); err != nil {
		return mapError("removeDirectory", name, err)
	}
	return nil
}

// CopyFile 本地文件系统上朴素拷贝已经足够，不做优化
func (h *Handler) CopyFile(ctx context.Context, src vfs.DirectoryHandler, srcInfo vfs.Info, destName string) (vfs.Info, bool, error) {
	return vfs.Info{}, false, nil
}

