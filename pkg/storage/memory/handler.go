// Package memory 实现纯内存的目录树
//
// 语义与磁盘 handler 相同，但不持久化，创建开销为 O(1)。
// 它是测试与 "int:" 描述符的默认临时池。不是并发安全的。
package memory

import (
	"context"
	"errors"
	"slices"
	"sort"

	"c2fs/pkg/vfs"
)

type node struct {
	name     string
	isDir    bool
	data     []byte
	children []*node // 按名字有序，仅目录有效
}

func (n *node) info() vfs.Info {
	if n.isDir {
		return vfs.Info{Name: n.name, Type: vfs.TypeDirectory}
	}
	return vfs.Info{Name: n.name, Type: vfs.TypeFile, Size: int64(len(n.data)), HasSize: true}
}

// lookup 二分查找子节点，返回下标和是否命中
func (n *node) lookup(name string) (int, bool) {
	i := sort.Search(len(n.children), func(i int) bool { return n.children[i].name >= name })
	return i, i < len(n.children) && n.children[i].name == name
}

// Handler 实现 vfs.WritableDirectoryHandler
type Handler struct {
	dir *node
}

var _ vfs.WritableDirectoryHandler = (*Handler)(nil)

// New 创建一个空的内存目录树
func New() *Handler {
	return &Handler{dir: &node{isDir: true}}
}

func (h *Handler) GetFileByName(ctx context.Context, name string) ([]byte, error) {
	return vfs.ReadFileByName(ctx, h, name)
}

func (h *Handler) GetFile(ctx context.Context, info vfs.Info) ([]byte, error) {
	i, ok := h.dir.lookup(info.Name)
	if !ok {
		return nil, vfs.NewError(vfs.KindNotFound, "getFile", info.Name, nil)
	}
	n := h.dir.children[i]
	if n.isDir {
		return nil, vfs.NewError(vfs.KindTypeConflict, "getFile", info.Name, errors.New("is a directory"))
	}
	// 返回副本，调用方修改不影响存储
	return slices.Clone(n.data), nil
}

func (h *Handler) FindItem(ctx context.Context, name string) (vfs.Info, bool, error) {
	i, ok := h.dir.lookup(name)
	if !ok {
		return vfs.Info{}, false, nil
	}
	return h.dir.children[i].info(), true, nil
}

func (h *Handler) ReadContent(ctx context.Context, fn func(vfs.Info) error) error {
	// 先快照，回调里修改目录不会打乱遍历
	infos := make([]vfs.Info, 0, len(h.dir.children))
	for _, c := range h.dir.children {
		infos = append(infos, c.info())
	}
	for _, info := range infos {
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) GetDirectory(ctx context.Context, info vfs.Info) (vfs.DirectoryHandler, error) {
	i, ok := h.dir.lookup(info.Name)
	if !ok {
		return nil, vfs.NewError(vfs.KindNotFound, "getDirectory", info.Name, nil)
	}
	n := h.dir.children[i]
	if !n.isDir {
		return nil, vfs.NewError(vfs.KindTypeConflict, "getDirectory", info.Name, errors.New("not a directory"))
	}
	return &Handler{dir: n}, nil
}

func (h *Handler) CreateFile(ctx context.Context, name string, data []byte) (vfs.Info, error) {
	if err := vfs.CheckName("createFile", name); err != nil {
		return vfs.Info{}, err
	}
	i, ok := h.dir.lookup(name)
	if ok {
		n := h.dir.children[i]
		if n.isDir {
			return vfs.Info{}, vfs.NewError(vfs.KindAlreadyExists, "createFile", name, errors.New("directory exists"))
		}
		n.data = slices.Clone(data)
		return n.info(), nil
	}
	n := &node{name: name, data: slices.Clone(data)}
	h.dir.children = slices.Insert(h.dir.children, i, n)
	return n.info(), nil
}

func (h *Handler) RemoveFile(ctx context.Context, name string) error {
	i, ok := h.dir.lookup(name)
	if !ok {
		return vfs.NewError(vfs.KindNotFound, "removeFile", name, nil)
	}
	if h.dir.children[i].isDir {
		return vfs.NewError(vfs.KindTypeConflict, "removeFile", name, errors.New("is a directory"))
	}
	h.dir.children = slices.Delete(h.dir.children, i, i+1)
	return nil
}

func (h *Handler) CreateDirectory(ctx context.Context, name string) (vfs.Info, error) {
	if err := vfs.CheckName("createDirectory", name); err != nil {
		return vfs.Info{}, err
	}
	i, ok := h.dir.lookup(name)
	if ok {
		n := h.dir.children[i]
		if !n.isDir {
			return vfs.Info{}, vfs.NewError(vfs.KindAlreadyExists, "createDirectory", name, errors.New("file exists"))
		}
		return n.info(), nil
	}
	n := &node{name: name, isDir: true}
	h.dir.children = slices.Insert(h.dir.children, i, n)
	return n.info(), nil
}

func (h *Handler) RemoveDirectory(ctx context.Context, name string) error {
	i, ok := h.dir.lookup(name)
	if !ok {
		return vfs.NewError(vfs.KindNotFound, "removeDirectory", name, nil)
	}
	n := h.dir.children[i]
	if !n.isDir {
		return vfs.NewError(vfs.KindTypeConflict, "removeDirectory", name, errors.New("not a directory"))
	}
	if len(n.children) > 0 {
		return vfs.NewError(vfs.KindNotEmpty, "removeDirectory", name, nil)
	}
	h.dir.children = slices.Delete(h.dir.children, i, i+1)
	return nil
}

// CopyFile 内存拷贝没有比朴素拷贝更快的办法
func (h *Handler) CopyFile(ctx context.Context, src vfs.DirectoryHandler, srcInfo vfs.Info, destName string) (vfs.Info, bool, error) {
	return vfs.Info{}, false, nil
}
