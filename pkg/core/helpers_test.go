package core

import (
	"crypto/sha1"
	"testing"

	"c2fs/pkg/types"

	"github.com/stretchr/testify/require"
)

// mockHash 生成一个合法的 20 字节 Hash
func mockHash(input string) types.Hash {
	return types.Hash(sha1.Sum([]byte(input)))
}

// mustNewCommit 创建 Commit，如果失败直接终止测试
func mustNewCommit(t *testing.T, treeHash types.Hash, msg string) *Commit {
	t.Helper()
	c, err := NewCommit(treeHash, msg)
	require.NoError(t, err)
	return c
}

func mustNewTree(t *testing.T, entries ...TreeEntry) *Tree {
	t.Helper()
	tree, err := NewTree(entries)
	require.NoError(t, err)
	return tree
}

func fileEntry(name, content string) TreeEntry {
	return TreeEntry{Name: name, Type: EntryFile, Hash: NewLink(CalculateBlobHash([]byte(content))), Size: int64(len(content))}
}
