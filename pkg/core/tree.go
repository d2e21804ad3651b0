package core

import (
	"fmt"
	"sort"

	"c2fs/pkg/types"
)

type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
)

type TreeEntry struct {
	Name string    `cbor:"n"`
	Type EntryType `cbor:"t"`
	Hash Link      `cbor:"h"`
	Size int64     `cbor:"s"` // 目录的 Size 记为 0
}

type Tree struct {
	hash     types.Hash `cbor:"-"`
	rawBytes []byte     `cbor:"-"`

	Entries []TreeEntry `cbor:"e"`
}

// EmptyTree 是空目录对应的 Tree
var EmptyTree = mustTree(nil)

func mustTree(entries []TreeEntry) *Tree {
	t, err := NewTree(entries)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTree 创建一个新的目录树节点
// 为了保证 Hash 的确定性，条目按名字排序；重名视为错误
func NewTree(entries []TreeEntry) (*Tree, error) {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Name == sorted[i-1].Name {
			return nil, fmt.Errorf("duplicate tree entry %q", sorted[i].Name)
		}
	}

	t := &Tree{Entries: sorted}
	if t.Entries == nil {
		t.Entries = []TreeEntry{}
	}
	h, b, err := CalculateHash(TypeTree, t)
	if err != nil {
		return nil, err
	}
	t.hash = h
	t.rawBytes = b
	return t, nil
}

// Find 二分查找条目
func (t *Tree) Find(name string) (TreeEntry, bool) {
	i := t.search(name)
	if i < len(t.Entries) && t.Entries[i].Name == name {
		return t.Entries[i], true
	}
	return TreeEntry{}, false
}

func (t *Tree) search(name string) int {
	return sort.Search(len(t.Entries), func(i int) bool { return t.Entries[i].Name >= name })
}

// With 返回替换 (或新增) 一个条目后的新 Tree
func (t *Tree) With(e TreeEntry) (*Tree, error) {
	entries := make([]TreeEntry, 0, len(t.Entries)+1)
	for _, old := range t.Entries {
		if old.Name != e.Name {
			entries = append(entries, old)
		}
	}
	entries = append(entries, e)
	return NewTree(entries)
}

// Without 返回删除一个条目后的新 Tree
func (t *Tree) Without(name string) (*Tree, error) {
	entries := make([]TreeEntry, 0, len(t.Entries))
	for _, old := range t.Entries {
		if old.Name != name {
			entries = append(entries, old)
		}
	}
	return NewTree(entries)
}

func (t *Tree) Type() ObjectType { return TypeTree }
func (t *Tree) ID() types.Hash   { return t.hash }
func (t *Tree) Bytes() []byte    { return t.rawBytes }
