package factory

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"c2fs/pkg/ca"
	"c2fs/pkg/remote"
	"c2fs/pkg/storage/memory"
	"c2fs/pkg/vfs"
	"c2fs/pkg/vfs/vfstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFactory(t *testing.T, opts Options) *Factory {
	t.Helper()
	f := New(opts)
	t.Cleanup(func() { f.Close() })
	return f
}

func mustWritable(t *testing.T, f *Factory, desc string) vfs.WritableDirectoryHandler {
	t.Helper()
	w, err := f.ResolveWritable(context.Background(), desc)
	require.NoError(t, err, desc)
	return w
}

func startServer(t *testing.T) string {
	t.Helper()
	srv := remote.NewServer(memory.New(), nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return ln.Addr().String()
}

func TestResolve_SameObject(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t, Options{})

	mem := mustWritable(t, f, "int:")
	vfstest.MustCreateDirectory(t, mem, "d")

	for _, desc := range []string{"int:", "int:x", "ca:int:y", "d@int:", t.TempDir()} {
		a, err := f.Resolve(ctx, desc)
		require.NoError(t, err, desc)
		b, err := f.Resolve(ctx, desc)
		require.NoError(t, err, desc)
		assert.Same(t, a, b, desc)
	}
}

func TestResolve_InternalPoolsAreIndependent(t *testing.T) {
	f := newFactory(t, Options{})

	vfstest.MustCreateFile(t, mustWritable(t, f, "int:"), "f", "shared")
	assert.Empty(t, vfstest.Names(t, mustWritable(t, f, "int:uniq")))
	assert.Equal(t, []string{"f"}, vfstest.Names(t, mustWritable(t, f, "int:")))
}

func TestResolve_CAWritesHead(t *testing.T) {
	f := newFactory(t, Options{})

	vfstest.MustCreateFile(t, mustWritable(t, f, "ca:int:"), "f", "zz")

	raw := mustWritable(t, f, "int:")
	assert.Equal(t, "ref: refs/heads/master\n", vfstest.MustReadFile(t, raw, "HEAD"))
	assert.Equal(t, ca.MarkerContent, vfstest.MustReadFile(t, raw, ca.MarkerFile))
}

func TestResolve_SnapshotScenario(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t, Options{})

	master := mustWritable(t, f, "ca:int:")
	vfstest.MustCreateFile(t, master, "f", "original")

	root, err := f.Root(ctx, "int:")
	require.NoError(t, err)
	_, err = root.CreateSnapshot(ctx, "s")
	require.NoError(t, err)

	vfstest.MustCreateFile(t, master, "f", "new")

	assert.Equal(t, "new", vfstest.MustReadFile(t, master, "f"))

	snap, err := f.Resolve(ctx, "snapshot:s:int:")
	require.NoError(t, err)
	assert.Equal(t, "original", vfstest.MustReadFile(t, snap, "f"))

	w, err := vfs.Writable(snap)
	require.NoError(t, err)
	_, err = w.CreateFile(ctx, "f", []byte("nope"))
	assert.Equal(t, vfs.KindReadOnly, vfs.KindOf(err))
}

func TestResolve_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t, Options{})
	vfstest.MustCreateFile(t, mustWritable(t, f, "int:"), "file", "x")

	_, err := f.Resolve(ctx, "missing@int:")
	assert.True(t, vfs.IsNotFound(err), "got %v", err)

	_, err = f.Resolve(ctx, "file@int:")
	assert.Equal(t, vfs.KindTypeConflict, vfs.KindOf(err))

	_, err = f.Resolve(ctx, "snapshot:nope:int:")
	assert.Error(t, err)

	_, err = f.Resolve(ctx, "snapshot:")
	assert.Error(t, err)

	_, err = f.Resolve(ctx, "c2file://host-without-port/x")
	assert.Error(t, err)

	_, err = f.Resolve(ctx, filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	// 失败的描述符不进缓存
	assert.NotContains(t, f.handlers, "missing@int:")
}

func TestResolve_RemoteSharesConnection(t *testing.T) {
	ctx := context.Background()
	addr := startServer(t)
	f := newFactory(t, Options{})

	a, err := f.Resolve(ctx, "c2file://alice@"+addr+"/")
	require.NoError(t, err)
	b, err := f.Resolve(ctx, "c2file://bob@"+addr+"/")
	require.NoError(t, err)

	ra, rb := a.(*remote.Handler), b.(*remote.Handler)
	assert.Same(t, ra.Conn(), rb.Conn())
	assert.Equal(t, "alice", ra.User())
	assert.Equal(t, "bob", rb.User())
	assert.Len(t, f.conns, 1)
}

func TestResolve_BadgerRefcounts(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t, Options{RefcountDir: t.TempDir()})

	vfstest.MustCreateFile(t, mustWritable(t, f, "ca:int:"), "f", "x")

	root, err := f.Root(ctx, "int:")
	require.NoError(t, err)
	id, err := root.GetMasterCommitID(ctx)
	require.NoError(t, err)
	n, err := root.RefCount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err := mustWritable(t, f, "int:").FindItem(ctx, "refcounts")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMakePathName(t *testing.T) {
	tests := []struct {
		backend string
		child   string
		want    string
	}{
		{"int:", "a", "a@int:"},
		{"ca:int:x", "a", "a@ca:int:x"},
		{"snapshot:s:int:", "a", "a@snapshot:s:int:"},
		{"a@int:", "b", "a/b@int:"},
		{"int:", "a@b", "a%40b@int:"},
		{"a@int:", "50%", "a/50%25@int:"},
		{"c2file://h:1/", "a@b", "c2file://h:1/a@b"},
		{"a/b@ca:int:", "c", "a/b/c@ca:int:"},
		{"c2file://u@h:1/p", "c", "c2file://u@h:1/p/c"},
		{"c2file://h:1/", "c", "c2file://h:1/c"},
		{"c2file://h:1/", "a b", "c2file://h:1/a%20b"},
		{"s3://bucket", "c", "s3://bucket/c"},
		{"/tmp/x", "c", filepath.Join("/tmp/x", "c")},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			assert.Equal(t, tt.want, MakePathName(tt.backend, tt.child))
		})
	}
}

// Resolve(MakePathName(b, c)) 与 Resolve(b).GetDirectory(c) 看到同样的内容
func TestMakePathName_Inverse(t *testing.T) {
	ctx := context.Background()
	addr := startServer(t)
	f := newFactory(t, Options{})

	native := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(native, "sub"), 0755))
	require.NoError(t, os.Mkdir(filepath.Join(native, "x@y"), 0755))

	mem := mustWritable(t, f, "int:n")
	vfstest.MustCreateDirectory(t, mem, "sub")

	backends := []string{
		native,
		filepath.Join(native, "sub"),
		filepath.Join(native, "x@y"),
		"int:n",
		"sub@int:n",
		"ca:int:c",
		"c2file://u@" + addr + "/",
	}
	for _, b := range backends {
		t.Run(b, func(t *testing.T) {
			parent := mustWritable(t, f, b)
			for _, name := range []string{"child", "a@b", "50%", "x%40y"} {
				child := vfstest.MustCreateDirectory(t, parent, name)
				vfstest.MustCreateFile(t, child, "g", "world "+name)

				desc := MakePathName(b, name)
				viaName, err := f.Resolve(ctx, desc)
				require.NoError(t, err, desc)
				assert.Equal(t, "world "+name, vfstest.MustReadFile(t, viaName, "g"), desc)

				viaDir, err := vfs.OpenDirectory(ctx, parent, name)
				require.NoError(t, err)
				assert.Equal(t, vfstest.Names(t, viaDir), vfstest.Names(t, viaName))
			}
		})
	}
}

func TestResolve_NativePathWithAt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "x@y")
	require.NoError(t, os.Mkdir(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("native"), 0644))

	f := newFactory(t, Options{})
	h, err := f.Resolve(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "native", vfstest.MustReadFile(t, h, "f"))
}
