package refs

import (
	"context"
	"testing"

	"c2fs/pkg/storage/memory"
	"c2fs/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCounterSuite 对任意 Counter 实现跑同一组断言
func runCounterSuite(t *testing.T, c Counter) {
	ctx := context.Background()
	a, b := mockHash("a"), mockHash("b")

	n, err := c.Get(ctx, a)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = c.Add(ctx, a, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = c.Add(ctx, a, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = c.Add(ctx, b, -1)
	require.NoError(t, err)
	assert.Zero(t, n, "计数不会小于 0")

	seen := map[types.Hash]int64{}
	require.NoError(t, c.Range(ctx, func(id types.Hash, n int64) error {
		seen[id] = n
		return nil
	}))
	assert.Equal(t, map[types.Hash]int64{a: 2, b: 0}, seen)

	require.NoError(t, c.Delete(ctx, a))
	n, err = c.Get(ctx, a)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, c.Delete(ctx, a), "重复删除是空操作")

	require.NoError(t, c.Close())
}

func TestPoolCounter(t *testing.T) {
	c, err := NewPoolCounter(context.Background(), memory.New())
	require.NoError(t, err)
	runCounterSuite(t, c)
}

func TestBadgerCounter_InMemory(t *testing.T) {
	c, err := OpenBadgerCounter("")
	require.NoError(t, err)
	runCounterSuite(t, c)
}

func TestBadgerCounter_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := OpenBadgerCounter(dir)
	require.NoError(t, err)
	_, err = c.Add(ctx, mockHash("p"), 3)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = OpenBadgerCounter(dir)
	require.NoError(t, err)
	defer c.Close()
	n, err := c.Get(ctx, mockHash("p"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
