package core

import "c2fs/pkg/types"

// Blob 代表一个文件的完整内容
// 它是 Merkle DAG 的叶子节点
type Blob struct {
	hash      types.Hash
	payload   []byte
	headerLen int
}

func NewBlob(data []byte) *Blob {
	h, payload := seal(TypeBlob, data)
	return &Blob{
		hash:      h,
		payload:   payload,
		headerLen: len(payload) - len(data),
	}
}

func (b *Blob) Type() ObjectType { return TypeBlob }
func (b *Blob) ID() types.Hash   { return b.hash }
func (b *Blob) Bytes() []byte    { return b.payload }

// Data 返回文件内容 (不含头部)
func (b *Blob) Data() []byte { return b.payload[b.headerLen:] }
func (b *Blob) Size() int64  { return int64(len(b.payload) - b.headerLen) }
