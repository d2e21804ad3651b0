// Package remote 实现 c2file:// 后端: 一个基于文本行的请求/响应协议
//
// 请求是一行: VERB 后跟若干个 Go 风格的带引号参数，PUT 额外带一个十进制长度，
// 原始字节紧跟在这一行之后。响应以 "OK [n]" 或 "ERR <Kind> <quoted message>" 开头。
//
//	LS "path"              -> OK <count>，随后每行一个条目
//	GET "path"             -> OK <len>，随后是原始字节
//	PUT "path" <len>       -> OK，随后一个条目行
//	MKDIR "path"           -> OK，随后一个条目行
//	RM "path" [f|d]        -> OK
//	CP "src" "dst"         -> OK，随后一个条目行
//	USER "id"              -> OK
//
// 条目行格式: <f|d> <size> "name"
package remote

import (
	"fmt"
	"strconv"
	"strings"

	"c2fs/pkg/vfs"
)

const (
	VerbList  = "LS"
	VerbGet   = "GET"
	VerbPut   = "PUT"
	VerbMkdir = "MKDIR"
	VerbRm    = "RM"
	VerbCopy  = "CP"
	VerbUser  = "USER"

	statusOK  = "OK"
	statusErr = "ERR"

	// MaxPayload 限制单个文件的传输大小
	MaxPayload = 1 << 30
)

// formatRequest 拼出请求行，参数一律加引号
func formatRequest(verb string, args ...string) string {
	var b strings.Builder
	b.WriteString(verb)
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(strconv.Quote(a))
	}
	return b.String()
}

// splitArgs 把一行拆成 token，带引号的部分按 Go 字符串字面量解码
func splitArgs(line string) ([]string, error) {
	var out []string
	s := line
	for {
		s = strings.TrimLeft(s, " ")
		if s == "" {
			return out, nil
		}
		if s[0] == '"' {
			q, err := strconv.QuotedPrefix(s)
			if err != nil {
				return nil, fmt.Errorf("bad quoted argument: %w", err)
			}
			v, err := strconv.Unquote(q)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
			s = s[len(q):]
			continue
		}
		end := strings.IndexByte(s, ' ')
		if end < 0 {
			end = len(s)
		}
		out = append(out, s[:end])
		s = s[end:]
	}
}

func formatEntry(info vfs.Info) string {
	t := "f"
	if info.IsDir() {
		t = "d"
	}
	return fmt.Sprintf("%s %d %s", t, info.Size, strconv.Quote(info.Name))
}

func parseEntry(line string) (vfs.Info, error) {
	parts, err := splitArgs(line)
	if err != nil {
		return vfs.Info{}, err
	}
	if len(parts) != 3 {
		return vfs.Info{}, fmt.Errorf("malformed entry %q", line)
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return vfs.Info{}, fmt.Errorf("malformed entry size %q", parts[1])
	}
	switch parts[0] {
	case "f":
		return vfs.Info{Name: parts[2], Type: vfs.TypeFile, Size: size, HasSize: true}, nil
	case "d":
		return vfs.Info{Name: parts[2], Type: vfs.TypeDirectory}, nil
	}
	return vfs.Info{}, fmt.Errorf("unknown entry type %q", parts[0])
}

// formatError 把错误编码成 ERR 行，分类原样透传给客户端
func formatError(err error) string {
	return fmt.Sprintf("%s %s %s", statusErr, vfs.KindOf(err), strconv.Quote(err.Error()))
}

// parseStatus 解析响应的首行
// 返回 OK 后面的数字 (没有时为 -1)；ERR 行转换为 *vfs.Error
func parseStatus(line, op, path string) (int64, error) {
	parts, err := splitArgs(line)
	if err != nil || len(parts) == 0 {
		return 0, protocolError(op, path, "malformed status line %q", line)
	}
	switch parts[0] {
	case statusOK:
		if len(parts) == 1 {
			return -1, nil
		}
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || n < 0 {
			return 0, protocolError(op, path, "malformed count %q", parts[1])
		}
		return n, nil
	case statusErr:
		if len(parts) != 3 {
			return 0, protocolError(op, path, "malformed error line %q", line)
		}
		kind, ok := vfs.ParseErrorKind(parts[1])
		if !ok {
			kind = vfs.KindIO
		}
		return 0, vfs.NewError(kind, op, path, &RemoteError{Kind: kind, Message: parts[2]})
	}
	return 0, protocolError(op, path, "unexpected status %q", parts[0])
}

// RemoteError 是服务端返回的错误原文
type RemoteError struct {
	Kind    vfs.ErrorKind
	Message string
}

func (e *RemoteError) Error() string { return "remote: " + e.Message }

func protocolError(op, path, format string, args ...any) error {
	return vfs.NewError(vfs.KindConnectionFailure, op, path, fmt.Errorf("protocol violation: "+format, args...))
}
