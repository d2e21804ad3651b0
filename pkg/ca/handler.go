package ca

import (
	"context"
	"errors"
	"slices"
	"strings"

	"c2fs/pkg/core"
	"c2fs/pkg/types"
	"c2fs/pkg/vfs"
)

// ContentIDPrefix 是 CA 条目 ContentID 的前缀
const ContentIDPrefix = "sha1:"

// Handler 是 CA 树里的一个目录
// 跟随 master 时可写；打开快照时只读，所有修改操作返回 KindReadOnly
type Handler struct {
	root     *Root
	path     []string
	pinned   types.Hash
	snapshot string
}

var _ vfs.WritableDirectoryHandler = (*Handler)(nil)

func (h *Handler) Root() *Root { return h.root }

// ReadOnly 报告是否是快照视图
func (h *Handler) ReadOnly() bool { return h.snapshot != "" }

func (h *Handler) pathOf(name string) string {
	return strings.Join(append(slices.Clone(h.path), name), "/")
}

// resolve 从 commit 的根 Tree 出发走到当前目录，返回途经的每一层
func (h *Handler) resolve(ctx context.Context, commit types.Hash) ([]*core.Tree, error) {
	tree, err := h.root.commitTree(ctx, commit)
	if err != nil {
		return nil, err
	}
	chain := make([]*core.Tree, 0, len(h.path)+1)
	chain = append(chain, tree)
	for i, seg := range h.path {
		e, ok := tree.Find(seg)
		p := strings.Join(h.path[:i+1], "/")
		if !ok {
			return nil, vfs.NewError(vfs.KindNotFound, "resolve", p, nil)
		}
		if e.Type != core.EntryDir {
			return nil, vfs.NewError(vfs.KindTypeConflict, "resolve", p, errors.New("not a directory"))
		}
		if tree, err = h.root.loadTree(ctx, e.Hash.Hash); err != nil {
			return nil, err
		}
		chain = append(chain, tree)
	}
	return chain, nil
}

func (h *Handler) commit(ctx context.Context) (types.Hash, error) {
	if h.ReadOnly() {
		return h.pinned, nil
	}
	return h.root.GetMasterCommitID(ctx)
}

func (h *Handler) current(ctx context.Context) (*core.Tree, error) {
	id, err := h.commit(ctx)
	if err != nil {
		return nil, err
	}
	chain, err := h.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return chain[len(chain)-1], nil
}

func toInfo(e core.TreeEntry) vfs.Info {
	if e.Type == core.EntryDir {
		return vfs.Info{Name: e.Name, Type: vfs.TypeDirectory}
	}
	return vfs.Info{
		Name:      e.Name,
		Type:      vfs.TypeFile,
		Size:      e.Size,
		HasSize:   true,
		ContentID: ContentIDPrefix + e.Hash.Hash.String(),
	}
}

// --- 只读部分 ---

func (h *Handler) GetFileByName(ctx context.Context, name string) ([]byte, error) {
	return vfs.ReadFileByName(ctx, h, name)
}

func (h *Handler) GetFile(ctx context.Context, info vfs.Info) ([]byte, error) {
	tree, err := h.current(ctx)
	if err != nil {
		return nil, err
	}
	e, ok := tree.Find(info.Name)
	if !ok {
		return nil, vfs.NewError(vfs.KindNotFound, "getFile", h.pathOf(info.Name), nil)
	}
	if e.Type != core.EntryFile {
		return nil, vfs.NewError(vfs.KindTypeConflict, "getFile", h.pathOf(info.Name), errors.New("is a directory"))
	}
	obj, err := h.root.store.Get(ctx, e.Hash.Hash)
	if err != nil {
		return nil, err
	}
	blob, ok := obj.(*core.Blob)
	if !ok {
		return nil, vfs.NewError(vfs.KindCorruptObject, "getFile", h.pathOf(info.Name), errors.New("entry does not point to a blob"))
	}
	return blob.Data(), nil
}

func (h *Handler) FindItem(ctx context.Context, name string) (vfs.Info, bool, error) {
	tree, err := h.current(ctx)
	if err != nil {
		return vfs.Info{}, false, err
	}
	e, ok := tree.Find(name)
	if !ok {
		return vfs.Info{}, false, nil
	}
	return toInfo(e), true, nil
}

func (h *Handler) ReadContent(ctx context.Context, fn func(vfs.Info) error) error {
	tree, err := h.current(ctx)
	if err != nil {
		return err
	}
	for _, e := range tree.Entries {
		if err := fn(toInfo(e)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) GetDirectory(ctx context.Context, info vfs.Info) (vfs.DirectoryHandler, error) {
	tree, err := h.current(ctx)
	if err != nil {
		return nil, err
	}
	e, ok := tree.Find(info.Name)
	if !ok {
		return nil, vfs.NewError(vfs.KindNotFound, "getDirectory", h.pathOf(info.Name), nil)
	}
	if e.Type != core.EntryDir {
		return nil, vfs.NewError(vfs.KindTypeConflict, "getDirectory", h.pathOf(info.Name), errors.New("not a directory"))
	}
	return &Handler{
		root:     h.root,
		path:     append(slices.Clone(h.path), info.Name),
		pinned:   h.pinned,
		snapshot: h.snapshot,
	}, nil
}

// --- 写路径 ---

// mutate 修改当前目录对应的 Tree，沿路径向上重建父 Tree，最后写 commit 并移动 master
// fn 返回原 Tree 表示无变化，此时不产生新 commit
func (h *Handler) mutate(ctx context.Context, op, name string, fn func(dir *core.Tree) (*core.Tree, error)) error {
	if h.ReadOnly() {
		return vfs.NewError(vfs.KindReadOnly, op, h.snapshot+":"+h.pathOf(name), nil)
	}
	if err := vfs.CheckName(op, name); err != nil {
		return err
	}

	master, err := h.root.GetMasterCommitID(ctx)
	if err != nil {
		return err
	}
	chain, err := h.resolve(ctx, master)
	if err != nil {
		return err
	}

	dir := chain[len(chain)-1]
	child, err := fn(dir)
	if err != nil {
		return err
	}
	if child.ID() == dir.ID() {
		return nil
	}
	if err := h.root.store.Put(ctx, child); err != nil {
		return err
	}

	for i := len(h.path) - 1; i >= 0; i-- {
		parent, err := chain[i].With(core.TreeEntry{
			Name: h.path[i],
			Type: core.EntryDir,
			Hash: core.NewLink(child.ID()),
		})
		if err != nil {
			return err
		}
		if err := h.root.store.Put(ctx, parent); err != nil {
			return err
		}
		child = parent
	}

	_, err = h.root.publish(ctx, master, child, op+" "+h.pathOf(name))
	return err
}

func (h *Handler) CreateFile(ctx context.Context, name string, data []byte) (vfs.Info, error) {
	blob := core.NewBlob(data)
	return h.link(ctx, "createFile", name, blob.ID(), blob.Size(), blob)
}

// link 让 name 指向一个 blob；obj 非 nil 时先写入对象
func (h *Handler) link(ctx context.Context, op, name string, id types.Hash, size int64, obj core.Object) (vfs.Info, error) {
	var info vfs.Info
	err := h.mutate(ctx, op, name, func(dir *core.Tree) (*core.Tree, error) {
		if e, ok := dir.Find(name); ok && e.Type == core.EntryDir {
			return nil, vfs.NewError(vfs.KindAlreadyExists, op, h.pathOf(name), errors.New("is a directory"))
		}
		if obj != nil {
			if err := h.root.store.Put(ctx, obj); err != nil {
				return nil, err
			}
		}
		entry := core.TreeEntry{Name: name, Type: core.EntryFile, Hash: core.NewLink(id), Size: size}
		info = toInfo(entry)
		return dir.With(entry)
	})
	return info, err
}

func (h *Handler) RemoveFile(ctx context.Context, name string) error {
	return h.mutate(ctx, "removeFile", name, func(dir *core.Tree) (*core.Tree, error) {
		e, ok := dir.Find(name)
		if !ok {
			return nil, vfs.NewError(vfs.KindNotFound, "removeFile", h.pathOf(name), nil)
		}
		if e.Type != core.EntryFile {
			return nil, vfs.NewError(vfs.KindTypeConflict, "removeFile", h.pathOf(name), errors.New("is a directory"))
		}
		return dir.Without(name)
	})
}

func (h *Handler) CreateDirectory(ctx context.Context, name string) (vfs.Info, error) {
	info := vfs.Info{Name: name, Type: vfs.TypeDirectory}
	err := h.mutate(ctx, "createDirectory", name, func(dir *core.Tree) (*core.Tree, error) {
		if e, ok := dir.Find(name); ok {
			if e.Type == core.EntryDir {
				return dir, nil
			}
			return nil, vfs.NewError(vfs.KindAlreadyExists, "createDirectory", h.pathOf(name), errors.New("is a file"))
		}
		if err := h.root.store.Put(ctx, core.EmptyTree); err != nil {
			return nil, err
		}
		return dir.With(core.TreeEntry{Name: name, Type: core.EntryDir, Hash: core.NewLink(core.EmptyTree.ID())})
	})
	if err != nil {
		return vfs.Info{}, err
	}
	return info, nil
}

func (h *Handler) RemoveDirectory(ctx context.Context, name string) error {
	return h.mutate(ctx, "removeDirectory", name, func(dir *core.Tree) (*core.Tree, error) {
		e, ok := dir.Find(name)
		if !ok {
			return nil, vfs.NewError(vfs.KindNotFound, "removeDirectory", h.pathOf(name), nil)
		}
		if e.Type != core.EntryDir {
			return nil, vfs.NewError(vfs.KindTypeConflict, "removeDirectory", h.pathOf(name), errors.New("not a directory"))
		}
		sub, err := h.root.loadTree(ctx, e.Hash.Hash)
		if err != nil {
			return nil, err
		}
		if len(sub.Entries) > 0 {
			return nil, vfs.NewError(vfs.KindNotEmpty, "removeDirectory", h.pathOf(name), nil)
		}
		return dir.Without(name)
	})
}

// CopyFile 在同一个 Root 内直接复用 blob，不读取数据
func (h *Handler) CopyFile(ctx context.Context, src vfs.DirectoryHandler, srcInfo vfs.Info, destName string) (vfs.Info, bool, error) {
	if h.ReadOnly() {
		return vfs.Info{}, false, vfs.NewError(vfs.KindReadOnly, "copyFile", h.snapshot+":"+h.pathOf(destName), nil)
	}
	other, ok := src.(*Handler)
	if !ok || other.root != h.root {
		return vfs.Info{}, false, nil
	}

	tree, err := other.current(ctx)
	if err != nil {
		return vfs.Info{}, false, err
	}
	e, found := tree.Find(srcInfo.Name)
	if !found {
		return vfs.Info{}, false, vfs.NewError(vfs.KindNotFound, "copyFile", other.pathOf(srcInfo.Name), nil)
	}
	if e.Type != core.EntryFile {
		return vfs.Info{}, false, vfs.NewError(vfs.KindTypeConflict, "copyFile", other.pathOf(srcInfo.Name), errors.New("is a directory"))
	}

	info, err := h.link(ctx, "copyFile", destName, e.Hash.Hash, e.Size, nil)
	if err != nil {
		return vfs.Info{}, false, err
	}
	return info, true, nil
}
