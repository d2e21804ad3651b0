package ignore

import (
	"context"
	"strings"

	"c2fs/pkg/vfs"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFile 是放在源目录根部的用户规则文件
const IgnoreFile = ".c2ignore"

// 系统级默认规则，总是生效
var defaultRules = []string{
	// --- 元数据目录 ---
	".c2fs",
	".git",

	// --- 安全与配置 ---
	"config.yaml", // 防止 S3 Secret Key 泄露
	".env",

	// --- 常见垃圾文件 ---
	".DS_Store", // macOS
	"Thumbs.db", // Windows
}

// Matcher 判断一个相对路径是否应该在复制/同步时被跳过
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 用默认规则加上 root 下 .c2ignore 的内容 (如果存在) 编译匹配器
// root 可以是任意后端的目录
func NewMatcher(ctx context.Context, root vfs.DirectoryHandler) (*Matcher, error) {
	info, ok, err := root.FindItem(ctx, IgnoreFile)
	if err != nil {
		return nil, err
	}
	if !ok || !info.IsFile() {
		return NewMatcherFromLines(), nil
	}

	data, err := root.GetFile(ctx, info)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	return NewMatcherFromLines(lines...), nil
}

// NewMatcherFromLines 只用默认规则和给定的行编译
func NewMatcherFromLines(lines ...string) *Matcher {
	all := append(append([]string{}, defaultRules...), lines...)
	return &Matcher{ignorer: gitignore.CompileIgnoreLines(all...)}
}

// Matches 检查给定的路径是否匹配忽略规则
// path 是相对于同步根目录、以 "/" 分隔的路径 (例如 "data/model.bin")
// true 表示跳过
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}
