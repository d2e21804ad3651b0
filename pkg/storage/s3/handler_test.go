package s3

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"c2fs/pkg/vfs"
	"c2fs/pkg/vfs/vfstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBucket = "c2fs-test"

// isMinIOAvailable 检查本地 9000 端口是否有服务
func isMinIOAvailable() bool {
	conn, err := net.DialTimeout("tcp", "localhost:9000", 1*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	if !isMinIOAvailable() {
		t.Skip("Skipping S3 integration test: MinIO not running on localhost:9000")
	}
	c, err := NewClient(context.Background(), Config{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		AccessKeyID:     "admin",
		SecretAccessKey: "password",
		ForcePathStyle:  true,
	})
	require.NoError(t, err)
	return c
}

// 每个测试使用独立前缀，互不干扰
func testPrefix(t *testing.T) string {
	name := strings.NewReplacer("/", "-", " ", "_").Replace(t.Name())
	return fmt.Sprintf("%s-%d", name, time.Now().UnixNano())
}

func newTestHandler(t *testing.T, c *Client) *Handler {
	t.Helper()
	h, err := NewHandler(context.Background(), c, testBucket, testPrefix(t))
	require.NoError(t, err)
	return h
}

func TestS3Handler_Suite(t *testing.T) {
	c := newTestClient(t)
	vfstest.RunHandlerSuite(t, func(t *testing.T) vfs.WritableDirectoryHandler {
		return newTestHandler(t, c)
	})
}

func TestS3Handler_ContentIDAndCopy(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	src := newTestHandler(t, c)
	dst := newTestHandler(t, c)

	info := vfstest.MustCreateFile(t, src, "a", "payload")
	assert.True(t, strings.HasPrefix(info.ContentID, ContentIDPrefix))

	copied, ok, err := dst.CopyFile(ctx, src, info, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "payload", vfstest.MustReadFile(t, dst, "b"))
	// 相同内容的 ETag 相同
	assert.Equal(t, info.ContentID, copied.ContentID)
}

func TestS3Handler_DirectoryMarkers(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	h := newTestHandler(t, c)

	vfstest.MustCreateDirectory(t, h, "empty")
	assert.Equal(t, []string{"empty"}, vfstest.Names(t, h))

	// 同一 bucket + prefix 重新打开能看到目录
	again, err := NewHandler(ctx, c, testBucket, h.Prefix())
	require.NoError(t, err)
	assert.Equal(t, []string{"empty"}, vfstest.Names(t, again))

	require.NoError(t, h.RemoveDirectory(ctx, "empty"))
	assert.Empty(t, vfstest.Names(t, h))
}

func TestS3Handler_CopyFromOtherBackendDeclines(t *testing.T) {
	c := newTestClient(t)
	h := newTestHandler(t, c)

	_, ok, err := h.CopyFile(context.Background(), nil, vfs.Info{Name: "x"}, "y")
	require.NoError(t, err)
	assert.False(t, ok)
}
