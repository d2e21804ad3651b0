package core

import (
	"time"

	"c2fs/pkg/types"
)

// Commit 只指向一个根 Tree
// 不记录父提交：被替换掉的 Commit 在 GC 看来就是不可达的
type Commit struct {
	hash     types.Hash `cbor:"-"`
	rawBytes []byte     `cbor:"-"`

	TreeCid Link   `cbor:"th"`
	Message string `cbor:"m"`

	// 纳秒时间戳，同一秒内的两次写入也会得到不同的 Commit
	Timestamp int64 `cbor:"ts"`
}

func NewCommit(treeHash types.Hash, msg string) (*Commit, error) {
	c := &Commit{
		TreeCid:   NewLink(treeHash),
		Message:   msg,
		Timestamp: time.Now().UnixNano(),
	}

	h, b, err := CalculateHash(TypeCommit, c)
	if err != nil {
		return nil, err
	}
	c.hash = h
	c.rawBytes = b
	return c, nil
}

func (c *Commit) Type() ObjectType { return TypeCommit }
func (c *Commit) ID() types.Hash   { return c.hash }
func (c *Commit) Bytes() []byte    { return c.rawBytes }

// Tree 返回根 Tree 的 Hash
func (c *Commit) Tree() types.Hash { return c.TreeCid.Hash }
