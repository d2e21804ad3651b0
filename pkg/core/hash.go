package core

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"strconv"

	"c2fs/pkg/types"
	"c2fs/pkg/vfs"

	"github.com/fxamacker/cbor/v2"
)

// 定义确定性的 CBOR 编码选项
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	// 保证相同的对象生成唯一的 Hash
	Sort: cbor.SortCanonical,

	// 2. 浮点数必须使用64位表示
	ShortestFloat: cbor.ShortestFloatNone,
	// 3. 时间格式化为 Unix 整数
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 4. 禁止不定长编码 (Indefinite Length)
	IndefLength: cbor.IndefLengthForbidden,

	BigIntConvert: cbor.BigIntConvertShortest,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

var decOptions = cbor.DecOptions{
	// --- 安全性配置 (防 DoS 攻击) ---
	// 一个目录最多 1M 个条目
	MaxArrayElements: 1 << 20,
	MaxMapPairs:      10000,
	MaxNestedLevels:  100,

	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	BignumTag:   cbor.BignumTagForbidden,
	TimeTag:     cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// header 生成 Git 风格的对象头: "<type> <len>\x00"
func header(t ObjectType, n int) []byte {
	h := make([]byte, 0, len(t)+22)
	h = append(h, t...)
	h = append(h, ' ')
	h = strconv.AppendInt(h, int64(n), 10)
	return append(h, 0)
}

// seal 拼接头部与正文，计算 SHA-1
func seal(t ObjectType, body []byte) (types.Hash, []byte) {
	payload := append(header(t, len(body)), body...)
	return types.Hash(sha1.Sum(payload)), payload
}

// CalculateHash 序列化结构化对象并计算 Hash
func CalculateHash(t ObjectType, v any) (types.Hash, []byte, error) {
	body, err := em.Marshal(v)
	if err != nil {
		return types.NilHash, nil, fmt.Errorf("failed to marshal %s: %w", t, err)
	}
	h, payload := seal(t, body)
	return h, payload, nil
}

// CalculateBlobHash 计算原始文件内容的 Hash (与 NewBlob 一致)
func CalculateBlobHash(data []byte) types.Hash {
	h, _ := seal(TypeBlob, data)
	return h
}

func corrupt(id types.Hash, format string, args ...any) error {
	return vfs.NewError(vfs.KindCorruptObject, "decode", id.String(), fmt.Errorf(format, args...))
}

// SplitPayload 解析头部，返回类型与正文
func SplitPayload(id types.Hash, payload []byte) (ObjectType, []byte, error) {
	sp := bytes.IndexByte(payload, ' ')
	nul := bytes.IndexByte(payload, 0)
	if sp <= 0 || nul <= sp {
		return "", nil, corrupt(id, "malformed object header")
	}
	t := ObjectType(payload[:sp])
	if !t.valid() {
		return "", nil, corrupt(id, "unknown object type %q", t)
	}
	n, err := strconv.Atoi(string(payload[sp+1 : nul]))
	if err != nil || n < 0 {
		return "", nil, corrupt(id, "invalid object length")
	}
	body := payload[nul+1:]
	if len(body) != n {
		return "", nil, corrupt(id, "length mismatch: header %d, body %d", n, len(body))
	}
	return t, body, nil
}

// DecodeObject 校验 Hash 并还原对象
// id 为 nil 时跳过 Hash 校验，直接使用计算值
func DecodeObject(id types.Hash, payload []byte) (Object, error) {
	sum := types.Hash(sha1.Sum(payload))
	if id.IsZero() {
		id = sum
	} else if sum != id {
		return nil, corrupt(id, "hash mismatch")
	}
	t, body, err := SplitPayload(id, payload)
	if err != nil {
		return nil, err
	}

	switch t {
	case TypeBlob:
		return &Blob{hash: id, payload: payload, headerLen: len(payload) - len(body)}, nil
	case TypeTree:
		var tree Tree
		if err := dm.Unmarshal(body, &tree); err != nil {
			return nil, corrupt(id, "bad tree: %v", err)
		}
		tree.hash, tree.rawBytes = id, payload
		return &tree, nil
	default:
		var c Commit
		if err := dm.Unmarshal(body, &c); err != nil {
			return nil, corrupt(id, "bad commit: %v", err)
		}
		c.hash, c.rawBytes = id, payload
		return &c, nil
	}
}
