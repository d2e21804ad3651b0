package storage

import (
	"context"
	"errors"

	"c2fs/pkg/core"
	"c2fs/pkg/types"
	"c2fs/pkg/vfs"
)

var (
	ErrNotFound      = vfs.ErrNotFound
	ErrAmbiguousHash = errors.New("ambiguous hash prefix")
)

// ObjectStore 是对象库的存储抽象
// 实现可以是对象池 (pool)，也可以是带缓存的装饰器 (cache)
type ObjectStore interface {
	// Put 将一个核心对象持久化，已存在时为空操作
	Put(ctx context.Context, obj core.Object) error

	// Get 读取并校验对象，Hash 不匹配返回 KindCorruptObject
	Get(ctx context.Context, hash types.Hash) (core.Object, error)

	// Has 检查对象是否存在 (用于去重逻辑)
	Has(ctx context.Context, hash types.Hash) (bool, error)

	// Delete 删除对象，不存在时为空操作
	Delete(ctx context.Context, hash types.Hash) error

	// List 遍历所有对象 ID
	List(ctx context.Context, fn func(types.Hash) error) error

	// ExpandHash 将短哈希扩展为完整的 Hash
	ExpandHash(ctx context.Context, short types.HashPrefix) (types.Hash, error)
}
