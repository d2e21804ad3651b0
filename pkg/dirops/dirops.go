// Package dirops 实现跨后端的目录算法: 列举、复制、同步、清空
//
// 所有算法都是同步、深度优先的。遇到第一个错误立即返回，
// 已经处理过的兄弟条目保持原样，不做回滚。
package dirops

import (
	"context"
	"errors"
	"fmt"
	"path"

	"c2fs/pkg/ignore"
	"c2fs/pkg/vfs"
)

type Action int

const (
	ActionCopy Action = iota
	ActionRemove
	ActionSkip // 内容相同未改写，或类型未知 (如符号链接) 无法复制
)

func (a Action) String() string {
	switch a {
	case ActionCopy:
		return "copy"
	case ActionRemove:
		return "remove"
	default:
		return "skip"
	}
}

// Callback 在每个文件或目录被处理后调用
// path 是相对于起始目录、以 "/" 分隔的路径
type Callback func(action Action, path string, info vfs.Info)

type options struct {
	matcher  *ignore.Matcher
	progress Callback
}

type Option func(*options)

// WithMatcher 跳过相对路径被 m 匹配的条目 (两侧都跳过，目标端的同名条目不会被删除)
func WithMatcher(m *ignore.Matcher) Option {
	return func(o *options) { o.matcher = m }
}

func WithProgress(fn Callback) Option {
	return func(o *options) { o.progress = fn }
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

func (o *options) notify(a Action, p string, info vfs.Info) {
	if o.progress != nil {
		o.progress(a, p, info)
	}
}

// filter 去掉被忽略的条目
func (o *options) filter(dir string, infos []vfs.Info) []vfs.Info {
	if o.matcher == nil {
		return infos
	}
	kept := infos[:0]
	for _, info := range infos {
		if !o.matcher.Matches(path.Join(dir, info.Name)) {
			kept = append(kept, info)
		}
	}
	return kept
}

// ListDirectory 一次性取出 ReadContent 的全部结果，按名字排序
func ListDirectory(ctx context.Context, h vfs.DirectoryHandler) ([]vfs.Info, error) {
	var infos []vfs.Info
	err := h.ReadContent(ctx, func(info vfs.Info) error {
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	vfs.SortByName(infos)
	return infos, nil
}

// copyFile 先尝试后端的快速路径，再回退到读+写
func copyFile(ctx context.Context, dest vfs.WritableDirectoryHandler, src vfs.DirectoryHandler, info vfs.Info) (vfs.Info, error) {
	out, ok, err := dest.CopyFile(ctx, src, info, info.Name)
	if err != nil {
		return vfs.Info{}, err
	}
	if ok {
		return out, nil
	}
	data, err := src.GetFile(ctx, info)
	if err != nil {
		return vfs.Info{}, err
	}
	return dest.CreateFile(ctx, info.Name, data)
}

// openChild 打开 (必要时创建) dest 下的子目录
// 已存在同名的非目录条目时返回 KindTypeConflict
func openChild(ctx context.Context, dest vfs.WritableDirectoryHandler, name string) (vfs.WritableDirectoryHandler, error) {
	existing, ok, err := dest.FindItem(ctx, name)
	if err != nil {
		return nil, err
	}
	if ok && !existing.IsDir() {
		return nil, vfs.NewError(vfs.KindTypeConflict, "copyDirectory", name, errors.New("destination is not a directory"))
	}
	return vfs.EnsureDirectory(ctx, dest, name)
}

// CopyDirectory 把 src 的内容复制进 dest
// recursive 为 false 时只复制文件，子目录被忽略
func CopyDirectory(ctx context.Context, dest vfs.WritableDirectoryHandler, src vfs.DirectoryHandler, recursive bool, opts ...Option) error {
	return copyDir(ctx, dest, src, recursive, "", newOptions(opts))
}

func copyDir(ctx context.Context, dest vfs.WritableDirectoryHandler, src vfs.DirectoryHandler, recursive bool, dir string, o *options) error {
	infos, err := ListDirectory(ctx, src)
	if err != nil {
		return err
	}
	for _, info := range o.filter(dir, infos) {
		rel := path.Join(dir, info.Name)

		if info.Type == vfs.TypeUnknown {
			o.notify(ActionSkip, rel, info)
			continue
		}
		if !info.IsDir() {
			out, err := copyFile(ctx, dest, src, info)
			if err != nil {
				return fmt.Errorf("copy %s: %w", rel, err)
			}
			o.notify(ActionCopy, rel, out)
			continue
		}

		if !recursive {
			continue
		}
		sub, err := src.GetDirectory(ctx, info)
		if err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
		target, err := openChild(ctx, dest, info.Name)
		if err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
		o.notify(ActionCopy, rel, info)
		if err := copyDir(ctx, target, sub, true, rel, o); err != nil {
			return err
		}
	}
	return nil
}

// SynchronizeDirectories 让 dest 与 src 完全一致 (总是递归)
// 两侧按名字排序后做归并：只在 src 的复制，只在 dest 的删除，
// 类型不同的先删后复制，同为文件的覆盖，同为目录的递归同步。
func SynchronizeDirectories(ctx context.Context, dest vfs.WritableDirectoryHandler, src vfs.DirectoryHandler, opts ...Option) error {
	return syncDir(ctx, dest, src, "", newOptions(opts))
}

func syncDir(ctx context.Context, dest vfs.WritableDirectoryHandler, src vfs.DirectoryHandler, dir string, o *options) error {
	srcInfos, err := ListDirectory(ctx, src)
	if err != nil {
		return err
	}
	destInfos, err := ListDirectory(ctx, dest)
	if err != nil {
		return err
	}
	srcInfos, destInfos = o.filter(dir, srcInfos), o.filter(dir, destInfos)

	i, j := 0, 0
	for i < len(srcInfos) || j < len(destInfos) {
		switch {
		case j == len(destInfos) || (i < len(srcInfos) && srcInfos[i].Name < destInfos[j].Name):
			if err := syncCopy(ctx, dest, src, srcInfos[i], dir, o); err != nil {
				return err
			}
			i++

		case i == len(srcInfos) || destInfos[j].Name < srcInfos[i].Name:
			if err := removeEntry(ctx, dest, destInfos[j], dir, o); err != nil {
				return err
			}
			j++

		default:
			s, d := srcInfos[i], destInfos[j]
			if err := syncBoth(ctx, dest, src, s, d, dir, o); err != nil {
				return err
			}
			i++
			j++
		}
	}
	return nil
}

func syncBoth(ctx context.Context, dest vfs.WritableDirectoryHandler, src vfs.DirectoryHandler, s, d vfs.Info, dir string, o *options) error {
	rel := path.Join(dir, s.Name)

	// 源端无法复制的条目不动目标端的同名条目
	if s.Type == vfs.TypeUnknown {
		o.notify(ActionSkip, rel, s)
		return nil
	}
	if s.Type != d.Type {
		if err := removeEntry(ctx, dest, d, dir, o); err != nil {
			return err
		}
		return syncCopy(ctx, dest, src, s, dir, o)
	}

	if s.IsDir() {
		sub, err := src.GetDirectory(ctx, s)
		if err != nil {
			return fmt.Errorf("sync %s: %w", rel, err)
		}
		target, err := vfs.OpenWritable(ctx, dest, d.Name)
		if err != nil {
			return fmt.Errorf("sync %s: %w", rel, err)
		}
		return syncDir(ctx, target, sub, rel, o)
	}

	if sameContent(s, d) {
		o.notify(ActionSkip, rel, d)
		return nil
	}
	out, err := copyFile(ctx, dest, src, s)
	if err != nil {
		return fmt.Errorf("sync %s: %w", rel, err)
	}
	o.notify(ActionCopy, rel, out)
	return nil
}

// sameContent 只有两侧都给出相同的非空 ContentID 与大小时才认为相同
func sameContent(a, b vfs.Info) bool {
	return a.ContentID != "" && a.ContentID == b.ContentID &&
		a.HasSize && b.HasSize && a.Size == b.Size
}

func syncCopy(ctx context.Context, dest vfs.WritableDirectoryHandler, src vfs.DirectoryHandler, info vfs.Info, dir string, o *options) error {
	rel := path.Join(dir, info.Name)
	if info.Type == vfs.TypeUnknown {
		o.notify(ActionSkip, rel, info)
		return nil
	}
	if !info.IsDir() {
		out, err := copyFile(ctx, dest, src, info)
		if err != nil {
			return fmt.Errorf("sync %s: %w", rel, err)
		}
		o.notify(ActionCopy, rel, out)
		return nil
	}

	sub, err := src.GetDirectory(ctx, info)
	if err != nil {
		return fmt.Errorf("sync %s: %w", rel, err)
	}
	target, err := vfs.EnsureDirectory(ctx, dest, info.Name)
	if err != nil {
		return fmt.Errorf("sync %s: %w", rel, err)
	}
	o.notify(ActionCopy, rel, info)
	return syncDir(ctx, target, sub, rel, o)
}

func removeEntry(ctx context.Context, dest vfs.WritableDirectoryHandler, info vfs.Info, dir string, o *options) error {
	rel := path.Join(dir, info.Name)
	if info.IsDir() {
		sub, err := vfs.OpenWritable(ctx, dest, info.Name)
		if err != nil {
			return fmt.Errorf("remove %s: %w", rel, err)
		}
		if err := removeContent(ctx, sub, rel, o); err != nil {
			return err
		}
		if err := dest.RemoveDirectory(ctx, info.Name); err != nil {
			return fmt.Errorf("remove %s: %w", rel, err)
		}
	} else if err := dest.RemoveFile(ctx, info.Name); err != nil {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	o.notify(ActionRemove, rel, info)
	return nil
}

// RemoveDirectoryContent 递归删除 h 下的所有条目，h 本身保留
// 忽略规则不适用于删除，只有进度回调生效
func RemoveDirectoryContent(ctx context.Context, h vfs.WritableDirectoryHandler, opts ...Option) error {
	o := newOptions(opts)
	o.matcher = nil
	return removeContent(ctx, h, "", o)
}

func removeContent(ctx context.Context, h vfs.WritableDirectoryHandler, dir string, o *options) error {
	infos, err := ListDirectory(ctx, h)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if err := removeEntry(ctx, h, info, dir, o); err != nil {
			return err
		}
	}
	return nil
}
