package ignore

import (
	"context"
	"testing"

	"c2fs/pkg/storage/memory"
	"c2fs/pkg/vfs/vfstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Defaults(t *testing.T) {
	// 没有 .c2ignore 的目录
	matcher, err := NewMatcher(context.Background(), memory.New())
	require.NoError(t, err)

	tests := []struct {
		path     string
		shouldIg bool
	}{
		{".c2fs", true},
		{".c2fs/objects/aa", true}, // 子路径也应该被忽略
		{".git", true},
		{"config.yaml", true},
		{".DS_Store", true},
		{"main.go", false},
		{"data/model.bin", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.shouldIg, matcher.Matches(tt.path), "Path: %s", tt.path)
		})
	}
}

func TestMatcher_WithUserFile(t *testing.T) {
	root := memory.New()
	vfstest.MustCreateFile(t, root, IgnoreFile, `
# 这是注释
*.log
temp
!important.log
`)

	matcher, err := NewMatcher(context.Background(), root)
	require.NoError(t, err)

	tests := []struct {
		path     string
		shouldIg bool
	}{
		// --- 默认规则依然要生效 ---
		{".c2fs", true},
		{"config.yaml", true},

		// --- 用户规则生效 ---
		{"app.log", true},
		{"logs/error.log", true},
		{"temp", true},
		{"temp/file", true},

		{"main.go", false},

		// --- 负向规则 ---
		{"important.log", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.shouldIg, matcher.Matches(tt.path), "Path: %s", tt.path)
		})
	}
}

func TestMatcher_IgnoreFileIsDirectory(t *testing.T) {
	root := memory.New()
	vfstest.MustCreateDirectory(t, root, IgnoreFile)

	matcher, err := NewMatcher(context.Background(), root)
	require.NoError(t, err)
	assert.False(t, matcher.Matches("app.log"))
}

func TestMatcher_Nil(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Matches("anything"))
}
