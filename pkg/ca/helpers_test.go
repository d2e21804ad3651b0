package ca

import (
	"context"
	"testing"

	"c2fs/pkg/storage/memory"
	"c2fs/pkg/types"
	"c2fs/pkg/vfs"

	"github.com/stretchr/testify/require"
)

func mustRoot(t *testing.T, backend vfs.WritableDirectoryHandler) *Root {
	t.Helper()
	r, err := NewRoot(context.Background(), backend, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func mustRootHandler(t *testing.T, r *Root) *Handler {
	t.Helper()
	h, err := r.CreateRootHandler(context.Background())
	require.NoError(t, err)
	return h
}

func newMemRoot(t *testing.T) (*Root, *Handler, *memory.Handler) {
	t.Helper()
	backend := memory.New()
	r := mustRoot(t, backend)
	return r, mustRootHandler(t, r), backend
}

func mustMaster(t *testing.T, r *Root) types.Hash {
	t.Helper()
	id, err := r.GetMasterCommitID(context.Background())
	require.NoError(t, err)
	return id
}

func mustRefCount(t *testing.T, r *Root, id types.Hash) int64 {
	t.Helper()
	n, err := r.RefCount(context.Background(), id)
	require.NoError(t, err)
	return n
}
