// pkg/types/common.go
package types

import (
	"encoding/hex"
	"fmt"
)

// HashSize 是对象 ID 的字节长度 (SHA-1)
const HashSize = 20

// Hash 代表对象的唯一标识符 (ObjectId)
// 这是一个“值对象”，定长、可比较，零值即 nil id。
type Hash [HashSize]byte

// NilHash 是特殊的空 ID，表示“没有对象”
var NilHash Hash

// String 返回 40 位小写 Hex
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero 判断是否为 nil id
func (h Hash) IsZero() bool { return h == NilHash }

// Shard 返回 Git 风格的分片路径: "aabbcc..." -> ("aa", "bbcc...")
func (h Hash) Shard() (string, string) {
	s := h.String()
	return s[:2], s[2:]
}

// ParseHash 解析 40 位 Hex 字符串
// 严格校验: 必须能无损地 decode -> encode 往返
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != HashSize*2 {
		return NilHash, fmt.Errorf("invalid hash length %d: %q", len(s), s)
	}
	n, err := hex.Decode(h[:], []byte(s))
	if err != nil {
		return NilHash, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if n != HashSize || h.String() != s {
		// 大写 Hex 等非规范形式不被接受
		return NilHash, fmt.Errorf("non-canonical hash %q", s)
	}
	return h, nil
}

// HashFromBytes 从原始字节构造 Hash
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return NilHash, fmt.Errorf("invalid hash byte length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HashPrefix 是用户输入的短哈希
type HashPrefix string

func (p HashPrefix) String() string { return string(p) }
