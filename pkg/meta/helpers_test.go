package meta

import (
	"context"
	"crypto/sha1"
	"testing"

	"c2fs/pkg/core"
	"c2fs/pkg/types"

	"github.com/stretchr/testify/require"
)

// mockHash 生成合法的测试用 Hash
func mockHash(input string) types.Hash {
	return types.Hash(sha1.Sum([]byte(input)))
}

func mustNewCommit(t *testing.T, treeHash types.Hash, msg string) *core.Commit {
	t.Helper()
	c, err := core.NewCommit(treeHash, msg)
	require.NoError(t, err)
	return c
}

func mustIndexCommit(t *testing.T, repo *Repository, c *core.Commit, ref string, previous types.Hash, msgAndArgs ...any) {
	t.Helper()
	require.NoError(t, repo.IndexCommit(context.Background(), c, ref, previous), msgAndArgs...)
}

func mustSwapRef(t *testing.T, repo *Repository, name string, newHash types.Hash, oldVersion int64, msgAndArgs ...any) {
	t.Helper()
	require.NoError(t, repo.swapRef(context.Background(), name, newHash, oldVersion), msgAndArgs...)
}
