package refs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"c2fs/pkg/types"
	"c2fs/pkg/vfs"
)

const (
	HeadFile    = "HEAD"
	HeadContent = "ref: refs/heads/master\n"
	RefsDir     = "refs"
	HeadsDir    = "heads"
	MasterRef   = "master"
)

var ErrNoRef = errors.New("ref not found")

// Manager 负责管理引用 (Refs)：HEAD、master 以及快照标签
// 所有状态都存放在对象池所在的目录上
type Manager struct {
	root vfs.WritableDirectoryHandler
}

func NewManager(root vfs.WritableDirectoryHandler) *Manager {
	return &Manager{root: root}
}

// Init 确保 refs/heads 与 HEAD 存在
func (m *Manager) Init(ctx context.Context) error {
	refs, err := vfs.EnsureDirectory(ctx, m.root, RefsDir)
	if err != nil {
		return fmt.Errorf("failed to create refs dir: %w", err)
	}
	if _, err := refs.CreateDirectory(ctx, HeadsDir); err != nil {
		return fmt.Errorf("failed to create heads dir: %w", err)
	}

	data, err := m.root.GetFileByName(ctx, HeadFile)
	if err == nil && string(data) == HeadContent {
		return nil
	}
	if err != nil && !vfs.IsNotFound(err) {
		return fmt.Errorf("failed to read HEAD: %w", err)
	}
	_, err = m.root.CreateFile(ctx, HeadFile, []byte(HeadContent))
	return err
}

func (m *Manager) refsDir(ctx context.Context) (vfs.WritableDirectoryHandler, error) {
	return vfs.OpenWritable(ctx, m.root, RefsDir)
}

func (m *Manager) headsDir(ctx context.Context) (vfs.WritableDirectoryHandler, error) {
	refs, err := m.refsDir(ctx)
	if err != nil {
		return nil, err
	}
	return vfs.OpenWritable(ctx, refs, HeadsDir)
}

// readRef 读取一个 ref 文件
// 内容无法往返 hex 编解码时视为 nil
func readRef(ctx context.Context, dir vfs.DirectoryHandler, name string) (types.Hash, error) {
	data, err := dir.GetFileByName(ctx, name)
	if err != nil {
		if vfs.IsNotFound(err) {
			return types.NilHash, ErrNoRef
		}
		return types.NilHash, fmt.Errorf("failed to read ref %s: %w", name, err)
	}
	h, err := types.ParseHash(strings.TrimSpace(string(data)))
	if err != nil {
		return types.NilHash, nil
	}
	return h, nil
}

func writeRef(ctx context.Context, dir vfs.WritableDirectoryHandler, name string, id types.Hash) error {
	_, err := dir.CreateFile(ctx, name, []byte(id.String()+"\n"))
	return err
}

// GetMaster 读取 refs/heads/master，不存在或内容非法时返回 NilHash
func (m *Manager) GetMaster(ctx context.Context) (types.Hash, error) {
	heads, err := m.headsDir(ctx)
	if err != nil {
		if vfs.IsNotFound(err) {
			return types.NilHash, nil
		}
		return types.NilHash, err
	}
	h, err := readRef(ctx, heads, MasterRef)
	if errors.Is(err, ErrNoRef) {
		return types.NilHash, nil
	}
	return h, err
}

// UpdateMaster 覆盖 master，写入本身是单文件替换
func (m *Manager) UpdateMaster(ctx context.Context, id types.Hash) error {
	heads, err := m.headsDir(ctx)
	if err != nil {
		return err
	}
	return writeRef(ctx, heads, MasterRef, id)
}

func checkSnapshotName(name string) error {
	if err := vfs.CheckName("snapshot", name); err != nil {
		return err
	}
	if name == HeadsDir {
		return vfs.NewError(vfs.KindPermissionDenied, "snapshot", name, errors.New("reserved name"))
	}
	return nil
}

// GetSnapshot 读取 refs/<name>，不存在时返回 ErrNoRef
func (m *Manager) GetSnapshot(ctx context.Context, name string) (types.Hash, error) {
	if err := checkSnapshotName(name); err != nil {
		return types.NilHash, err
	}
	refs, err := m.refsDir(ctx)
	if err != nil {
		return types.NilHash, err
	}
	return readRef(ctx, refs, name)
}

func (m *Manager) SetSnapshot(ctx context.Context, name string, id types.Hash) error {
	if err := checkSnapshotName(name); err != nil {
		return err
	}
	refs, err := m.refsDir(ctx)
	if err != nil {
		return err
	}
	return writeRef(ctx, refs, name, id)
}

func (m *Manager) RemoveSnapshot(ctx context.Context, name string) error {
	if err := checkSnapshotName(name); err != nil {
		return err
	}
	refs, err := m.refsDir(ctx)
	if err != nil {
		return err
	}
	if err := refs.RemoveFile(ctx, name); err != nil {
		if vfs.IsNotFound(err) {
			return ErrNoRef
		}
		return err
	}
	return nil
}

// ListSnapshots 返回按名字排序的快照列表
func (m *Manager) ListSnapshots(ctx context.Context) ([]string, error) {
	refs, err := m.refsDir(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	err = refs.ReadContent(ctx, func(info vfs.Info) error {
		if info.IsFile() {
			names = append(names, info.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
