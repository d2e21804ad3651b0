package core

import "c2fs/pkg/types"

// ObjectType 定义了对象库中的对象类型
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"   // 文件内容
	TypeTree   ObjectType = "tree"   // 目录快照
	TypeCommit ObjectType = "commit" // 指向根 Tree
)

func (t ObjectType) valid() bool {
	return t == TypeBlob || t == TypeTree || t == TypeCommit
}

// Object 是所有对象的通用接口
// 对象一经写入即不可变，按内容哈希去重
type Object interface {
	// Type 返回对象类型
	Type() ObjectType

	// ID 返回对象的哈希值 (ObjectId)
	ID() types.Hash

	// Bytes 返回完整的未压缩载荷 (头部 + 正文)，用于存储
	Bytes() []byte
}
