// Package vfs 定义所有存储后端实现的目录能力，以及它们共用的少量工具函数
//
// 一个 DirectoryHandler 只对应一个目录，进入子目录会得到新的 handler，
// handler 不暴露路径。
//
// 能力分两级:
//   - DirectoryHandler: 只读的列举、查找与读文件
//   - WritableDirectoryHandler: 增加创建、删除，以及可选的 CopyFile 快速路径
//
// 除非特别说明，后端都不是并发安全的。所有调用阻塞到底层 I/O 完成。
package vfs

import "context"

// EntryType 条目类型
type EntryType int

const (
	TypeUnknown EntryType = iota
	TypeFile
	TypeDirectory
)

func (t EntryType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "dir"
	default:
		return "unknown"
	}
}

// Info 描述目录中的一个条目
// 每次列举都会重新生成，核心层不做跨调用缓存
type Info struct {
	Name string
	Type EntryType

	// Size 仅对文件有效；HasSize 为 false 时表示后端无法廉价地给出大小
	Size    int64
	HasSize bool

	// ContentID 是后端相关的不透明内容标识 (例如 "sha1:<hex>")
	// 仅在后端能廉价提供时才非空
	ContentID string
}

func (i Info) IsDir() bool  { return i.Type == TypeDirectory }
func (i Info) IsFile() bool { return i.Type == TypeFile }

// DirectoryHandler 只读能力
type DirectoryHandler interface {
	// GetFileByName 读取当前目录下名为 name 的文件的全部内容
	GetFileByName(ctx context.Context, name string) ([]byte, error)

	// GetFile 读取由 ReadContent / FindItem 返回的文件条目
	GetFile(ctx context.Context, info Info) ([]byte, error)

	// FindItem 查找条目；不存在时返回 (Info{}, false, nil)
	FindItem(ctx context.Context, name string) (Info, bool, error)

	// ReadContent 枚举当前目录的一层子条目
	// fn 返回错误时枚举立即终止，并把该错误原样返回
	ReadContent(ctx context.Context, fn func(Info) error) error

	// GetDirectory 进入子目录
	GetDirectory(ctx context.Context, info Info) (DirectoryHandler, error)
}

// WritableDirectoryHandler 读写能力
type WritableDirectoryHandler interface {
	DirectoryHandler

	// CreateFile 创建或覆盖文件；同名条目是目录时返回 KindAlreadyExists
	CreateFile(ctx context.Context, name string, data []byte) (Info, error)

	RemoveFile(ctx context.Context, name string) error

	// CreateDirectory 创建目录；已存在同名目录时直接返回它的 Info
	CreateDirectory(ctx context.Context, name string) (Info, error)

	// RemoveDirectory 删除空目录；非空时返回 KindNotEmpty
	RemoveDirectory(ctx context.Context, name string) error

	// CopyFile 是可选的快速路径
	// ok == false 表示后端没有可用的优化，调用方应回退到
	// CreateFile(name, src.GetFile(srcInfo))。
	// 实现只能返回 ok == false 或一个正确的结果，绝不能产生错误数据。
	CopyFile(ctx context.Context, src DirectoryHandler, srcInfo Info, destName string) (info Info, ok bool, err error)
}

// Writable 把只读 handler 提升为可写 handler，不支持写入时返回 KindReadOnly
func Writable(h DirectoryHandler) (WritableDirectoryHandler, error) {
	w, ok := h.(WritableDirectoryHandler)
	if !ok {
		return nil, &Error{Kind: KindReadOnly, Op: "open", Err: ErrReadOnly}
	}
	return w, nil
}
