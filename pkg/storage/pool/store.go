// Package pool 把对象库落在任意可写目录上: objects/XX/YYYY
package pool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"c2fs/pkg/core"
	"c2fs/pkg/storage"
	"c2fs/pkg/types"
	"c2fs/pkg/vfs"

	"github.com/klauspost/compress/zlib"
)

const ObjectsDir = "objects"

// Store 实现了 storage.ObjectStore 接口
// 对象以 zlib 压缩存储，文件名即 Hash
type Store struct {
	root  vfs.WritableDirectoryHandler
	level int
}

// NewStore 在 root 下打开 (必要时创建) objects 目录
// level 为 zlib 压缩级别，0 表示默认
func NewStore(ctx context.Context, root vfs.WritableDirectoryHandler, level int) (*Store, error) {
	if level == 0 {
		level = zlib.DefaultCompression
	}
	if level < zlib.HuffmanOnly || level > zlib.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}
	if _, err := root.CreateDirectory(ctx, ObjectsDir); err != nil {
		return nil, fmt.Errorf("failed to create objects dir: %w", err)
	}
	return &Store{root: root, level: level}, nil
}

func (s *Store) objects(ctx context.Context) (vfs.WritableDirectoryHandler, error) {
	return vfs.OpenWritable(ctx, s.root, ObjectsDir)
}

// shard 打开分片目录 (objects/XX)，create 为 true 时按需创建
func (s *Store) shard(ctx context.Context, prefix string, create bool) (vfs.WritableDirectoryHandler, error) {
	objs, err := s.objects(ctx)
	if err != nil {
		return nil, err
	}
	if create {
		return vfs.EnsureDirectory(ctx, objs, prefix)
	}
	return vfs.OpenWritable(ctx, objs, prefix)
}

func (s *Store) Put(ctx context.Context, obj core.Object) error {
	// 1. 幂等性检查 (去重)
	exists, err := s.Has(ctx, obj.ID())
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	// 2. 压缩
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, s.level)
	if err != nil {
		return err
	}
	if _, err := zw.Write(obj.Bytes()); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	// 3. 写入分片目录
	dir, name := obj.ID().Shard()
	sh, err := s.shard(ctx, dir, true)
	if err != nil {
		return err
	}
	if _, err := sh.CreateFile(ctx, name, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write object %s: %w", obj.ID(), err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, hash types.Hash) (core.Object, error) {
	dir, name := hash.Shard()
	sh, err := s.shard(ctx, dir, false)
	if err != nil {
		return nil, s.notFound(hash, err)
	}
	compressed, err := sh.GetFileByName(ctx, name)
	if err != nil {
		return nil, s.notFound(hash, err)
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, vfs.NewError(vfs.KindCorruptObject, "get", hash.String(), err)
	}
	defer zr.Close()
	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, vfs.NewError(vfs.KindCorruptObject, "get", hash.String(), err)
	}
	return core.DecodeObject(hash, payload)
}

func (s *Store) notFound(hash types.Hash, err error) error {
	if vfs.IsNotFound(err) {
		return vfs.NewError(vfs.KindNotFound, "get", hash.String(), nil)
	}
	return err
}

func (s *Store) Has(ctx context.Context, hash types.Hash) (bool, error) {
	dir, name := hash.Shard()
	sh, err := s.shard(ctx, dir, false)
	if err != nil {
		if vfs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	info, ok, err := sh.FindItem(ctx, name)
	if err != nil {
		return false, err
	}
	return ok && info.IsFile(), nil
}

// Delete 删除对象文件，分片目录变空时一并删除
func (s *Store) Delete(ctx context.Context, hash types.Hash) error {
	dir, name := hash.Shard()
	sh, err := s.shard(ctx, dir, false)
	if err != nil {
		if vfs.IsNotFound(err) {
			return nil
		}
		return err
	}
	if err := sh.RemoveFile(ctx, name); err != nil && !vfs.IsNotFound(err) {
		return err
	}

	objs, err := s.objects(ctx)
	if err != nil {
		return err
	}
	if err := objs.RemoveDirectory(ctx, dir); err != nil && vfs.KindOf(err) != vfs.KindNotEmpty && !vfs.IsNotFound(err) {
		return err
	}
	return nil
}

func (s *Store) List(ctx context.Context, fn func(types.Hash) error) error {
	objs, err := s.objects(ctx)
	if err != nil {
		return err
	}

	var shards []string
	err = objs.ReadContent(ctx, func(info vfs.Info) error {
		if info.IsDir() && len(info.Name) == 2 {
			shards = append(shards, info.Name)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, prefix := range shards {
		sh, err := vfs.OpenDirectory(ctx, objs, prefix)
		if err != nil {
			return err
		}
		var ids []types.Hash
		err = sh.ReadContent(ctx, func(info vfs.Info) error {
			if !info.IsFile() {
				return nil
			}
			h, err := types.ParseHash(prefix + info.Name)
			if err != nil {
				// 临时文件或无关文件
				return nil
			}
			ids = append(ids, h)
			return nil
		})
		if err != nil {
			return err
		}
		for _, h := range ids {
			if err := fn(h); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExpandHash 在分片目录内按前缀查找
func (s *Store) ExpandHash(ctx context.Context, short types.HashPrefix) (types.Hash, error) {
	in := strings.ToLower(short.String())
	if len(in) < 4 {
		return types.NilHash, fmt.Errorf("hash prefix too short")
	}
	if len(in) == types.HashSize*2 {
		return types.ParseHash(in)
	}

	sh, err := s.shard(ctx, in[:2], false)
	if err != nil {
		if vfs.IsNotFound(err) {
			return types.NilHash, storage.ErrNotFound
		}
		return types.NilHash, err
	}

	var found []types.Hash
	err = sh.ReadContent(ctx, func(info vfs.Info) error {
		if strings.HasPrefix(info.Name, in[2:]) {
			if h, err := types.ParseHash(in[:2] + info.Name); err == nil {
				found = append(found, h)
			}
		}
		return nil
	})
	if err != nil {
		return types.NilHash, err
	}

	switch len(found) {
	case 0:
		return types.NilHash, storage.ErrNotFound
	case 1:
		return found[0], nil
	default:
		return types.NilHash, storage.ErrAmbiguousHash
	}
}
