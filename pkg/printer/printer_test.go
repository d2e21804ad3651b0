package printer

import (
	"bytes"
	"strings"
	"testing"

	"c2fs/pkg/core"
	"c2fs/pkg/vfs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintObject(t *testing.T) {
	blob := core.NewBlob([]byte("hello\n"))
	tree, err := core.NewTree([]core.TreeEntry{
		{Name: "f", Type: core.EntryFile, Hash: core.NewLink(blob.ID()), Size: 6},
		{Name: "d", Type: core.EntryDir, Hash: core.NewLink(core.EmptyTree.ID())},
	})
	require.NoError(t, err)
	commit, err := core.NewCommit(tree.ID(), "snapshot msg")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, PrintObject(&buf, blob))
	assert.Contains(t, buf.String(), "Type: Blob")
	assert.Contains(t, buf.String(), "Size: 6B")

	buf.Reset()
	require.NoError(t, PrintObject(&buf, tree))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5) // 标题、空行、表头、两个条目
	assert.Contains(t, lines[3], "dir")
	assert.Contains(t, lines[4], "ce013625")

	buf.Reset()
	require.NoError(t, PrintObject(&buf, commit))
	assert.Contains(t, buf.String(), tree.ID().String())
	assert.Contains(t, buf.String(), "snapshot msg")
}

func TestPrintListing(t *testing.T) {
	var buf bytes.Buffer
	err := PrintListing(&buf, []vfs.Info{
		{Name: "d", Type: vfs.TypeDirectory},
		{Name: "f", Type: vfs.TypeFile, Size: 2048, HasSize: true},
		{Name: "r", Type: vfs.TypeFile},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "d/")
	assert.Contains(t, lines[1], "2.0KB")
	assert.Contains(t, lines[2], "-")
}

func TestFmtSize(t *testing.T) {
	assert.Equal(t, "0B", FmtSize(0))
	assert.Equal(t, "1.5KB", FmtSize(1536))
	assert.Equal(t, "2.00MB", FmtSize(2*1024*1024))
}
