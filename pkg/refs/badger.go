package refs

import (
	"context"
	"encoding/binary"
	"fmt"

	"c2fs/pkg/types"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// 键格式: "rc:" + 20 字节 Hash，值为 8 字节大端 int64
var badgerKeyPrefix = []byte("rc:")

// BadgerCounter 把引用计数放在独立的 BadgerDB 里
// 适合对象池在远端、计数文件往返太贵的场景
type BadgerCounter struct {
	db *badger.DB
}

// OpenBadgerCounter 打开 (必要时创建) dir 下的数据库
// dir 为空时使用内存模式
func OpenBadgerCounter(dir string) (*BadgerCounter, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLoggingLevel(badger.WARNING).WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", dir, err)
	}
	return &BadgerCounter{db: db}, nil
}

func badgerKey(id types.Hash) []byte {
	k := make([]byte, 0, len(badgerKeyPrefix)+types.HashSize)
	k = append(k, badgerKeyPrefix...)
	return append(k, id[:]...)
}

func readCount(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("invalid refcount value length %d", len(val))
		}
		n = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return n, err
}

func (c *BadgerCounter) Get(ctx context.Context, id types.Hash) (int64, error) {
	var n int64
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = readCount(txn, badgerKey(id))
		return err
	})
	return n, err
}

// Add 在一个事务里完成读-改-写，结果不会小于 0
func (c *BadgerCounter) Add(ctx context.Context, id types.Hash, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := badgerKey(id)
	var n int64
	err := c.db.Update(func(txn *badger.Txn) error {
		cur, err := readCount(txn, key)
		if err != nil {
			return err
		}
		n = max(cur+delta, 0)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(n))
		return txn.Set(key, buf[:])
	})
	return n, err
}

func (c *BadgerCounter) Delete(ctx context.Context, id types.Hash) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(id))
	})
}

func (c *BadgerCounter) Range(ctx context.Context, fn func(types.Hash, int64) error) error {
	return c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerKeyPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id, err := types.HashFromBytes(item.Key()[len(badgerKeyPrefix):])
			if err != nil {
				continue
			}
			n, err := readCount(txn, item.KeyCopy(nil))
			if err != nil {
				return err
			}
			if err := fn(id, n); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *BadgerCounter) Close() error {
	return c.db.Close()
}
