package vfs

import (
	"context"
	"errors"
	"sort"
)

// errStop 用于提前结束 ReadContent 枚举
var errStop = errors.New("stop iteration")

// FindByScan 是 FindItem 的默认实现：线性扫描 ReadContent
// 无法做得更好的后端直接复用它
func FindByScan(ctx context.Context, h DirectoryHandler, name string) (Info, bool, error) {
	var found Info
	ok := false
	err := h.ReadContent(ctx, func(info Info) error {
		if info.Name == name {
			found = info
			ok = true
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return Info{}, false, err
	}
	return found, ok, nil
}

// ReadFileByName 是 GetFileByName 的默认实现
func ReadFileByName(ctx context.Context, h DirectoryHandler, name string) ([]byte, error) {
	info, ok, err := h.FindItem(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewError(KindNotFound, "getFile", name, nil)
	}
	if !info.IsFile() {
		return nil, NewError(KindTypeConflict, "getFile", name, errors.New("is a directory"))
	}
	return h.GetFile(ctx, info)
}

// OpenDirectory 按名字进入子目录
func OpenDirectory(ctx context.Context, h DirectoryHandler, name string) (DirectoryHandler, error) {
	info, ok, err := h.FindItem(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewError(KindNotFound, "getDirectory", name, nil)
	}
	if !info.IsDir() {
		return nil, NewError(KindTypeConflict, "getDirectory", name, errors.New("not a directory"))
	}
	return h.GetDirectory(ctx, info)
}

// WalkPath 依次进入 segments 指定的子目录
// 任何一段缺失或不是目录都会失败
func WalkPath(ctx context.Context, h DirectoryHandler, segments []string) (DirectoryHandler, error) {
	cur := h
	for _, seg := range segments {
		next, err := OpenDirectory(ctx, cur, seg)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// SortByName 按名字排序 (原地)
func SortByName(infos []Info) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
}

// ValidName 检查单级名字是否合法
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' || name[i] == 0 {
			return false
		}
	}
	return true
}

// CheckName 在名字非法时返回 KindPermissionDenied 错误
func CheckName(op, name string) error {
	if !ValidName(name) {
		return NewError(KindPermissionDenied, op, name, errors.New("invalid entry name"))
	}
	return nil
}

// OpenWritable 进入可写子目录
func OpenWritable(ctx context.Context, h DirectoryHandler, name string) (WritableDirectoryHandler, error) {
	d, err := OpenDirectory(ctx, h, name)
	if err != nil {
		return nil, err
	}
	return Writable(d)
}

// EnsureDirectory 按需创建子目录并进入
func EnsureDirectory(ctx context.Context, h WritableDirectoryHandler, name string) (WritableDirectoryHandler, error) {
	info, err := h.CreateDirectory(ctx, name)
	if err != nil {
		return nil, err
	}
	d, err := h.GetDirectory(ctx, info)
	if err != nil {
		return nil, err
	}
	return Writable(d)
}
