package meta

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"c2fs/pkg/ca"
	"c2fs/pkg/storage/memory"
	"c2fs/pkg/types"
	"c2fs/pkg/vfs/vfstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ ca.CommitIndexer = (*Repository)(nil)

// setupTestRepo 构建隔离的测试环境
func setupTestRepo(t *testing.T) *Repository {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	metaDB := NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(Models()...))

	return NewRepository(metaDB)
}

func TestRepository_CommitLifecycle(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	c := mustNewCommit(t, mockHash("tree_data"), "Init")
	mustIndexCommit(t, repo, c, ca.MasterRefName, types.NilHash)

	stored, err := repo.GetCommit(ctx, c.ID())
	require.NoError(t, err)
	assert.Equal(t, c.ID().String(), stored.Hash)
	assert.Equal(t, "Init", stored.Message)
	assert.Equal(t, mockHash("tree_data").String(), stored.TreeHash)

	ref, err := repo.GetRef(ctx, ca.MasterRefName)
	require.NoError(t, err)
	assert.Equal(t, c.ID().String(), ref.CommitHash)
	assert.Equal(t, int64(1), ref.Version)

	_, err = repo.GetCommit(ctx, mockHash("missing"))
	assert.ErrorIs(t, err, ErrCommitNotFound)
}

func TestRepository_IndexCommit_Idempotency(t *testing.T) {
	repo := setupTestRepo(t)
	c := mustNewCommit(t, mockHash("tree"), "Update")

	mustIndexCommit(t, repo, c, ca.MasterRefName, types.NilHash, "1st write failed")
	mustIndexCommit(t, repo, c, "refs/s", types.NilHash, "2nd write (idempotency check) failed")

	var count int64
	err := repo.db.GetConn().Model(&CommitModel{}).Where("hash = ?", c.ID().String()).Count(&count).Error
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "Should have exactly 1 record after duplicate inserts")

	// 每次移动都有一条流水
	err = repo.db.GetConn().Model(&RefLog{}).Count(&count).Error
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRepository_History(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	c1 := mustNewCommit(t, mockHash("t1"), "1")
	c2 := mustNewCommit(t, mockHash("t2"), "2")
	mustIndexCommit(t, repo, c1, ca.MasterRefName, types.NilHash)
	mustIndexCommit(t, repo, c2, ca.MasterRefName, c1.ID())

	logs, err := repo.History(ctx, ca.MasterRefName, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, c2.ID().String(), logs[0].New)
	assert.Equal(t, c1.ID().String(), logs[0].Old)
	assert.Empty(t, logs[1].Old)
	assert.JSONEq(t, fmt.Sprintf(`{"message":"2","tree":"%s"}`, mockHash("t2")), string(logs[0].Detail))

	ref, err := repo.GetRef(ctx, ca.MasterRefName)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ref.Version)
	assert.Equal(t, c2.ID().String(), ref.CommitHash)
}

func TestRepository_ListCommits(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	c1 := mustNewCommit(t, mockHash("t1"), "1")
	c1.Timestamp = 1000
	c2 := mustNewCommit(t, mockHash("t2"), "2")
	c3 := mustNewCommit(t, mockHash("t3"), "3")
	c3.Timestamp = 500 // 最旧

	mustIndexCommit(t, repo, c1, ca.MasterRefName, types.NilHash)
	mustIndexCommit(t, repo, c2, ca.MasterRefName, c1.ID())
	mustIndexCommit(t, repo, c3, ca.MasterRefName, c2.ID())

	results, err := repo.ListCommits(ctx, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, c2.ID().String(), results[0].Hash, "Newest commit should be first")
	assert.Equal(t, c1.ID().String(), results[1].Hash)
}

func TestRepository_Ref_CAS(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	refName := ca.MasterRefName
	hashV1 := mockHash("v1")
	hashV2 := mockHash("v2")

	mustSwapRef(t, repo, refName, hashV1, 0, "Initial creation failed")

	ref, err := repo.GetRef(ctx, refName)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ref.Version)

	err = repo.swapRef(ctx, refName, hashV2, 999)
	assert.ErrorIs(t, err, ErrConcurrentUpdate, "Should fail when version mismatches")

	mustSwapRef(t, repo, refName, hashV2, 1, "Valid update failed")

	ref, err = repo.GetRef(ctx, refName)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ref.Version)
	assert.Equal(t, hashV2.String(), ref.CommitHash)

	_, err = repo.GetRef(ctx, "refs/none")
	assert.ErrorIs(t, err, ErrRefNotFound)
}

func TestRepository_Ref_ConcurrentCreate(t *testing.T) {
	repo := setupTestRepo(t)

	mustSwapRef(t, repo, ca.MasterRefName, mockHash("A"), 0)

	// 晚到的创建者也以为 oldVersion 是 0
	err := repo.swapRef(context.Background(), ca.MasterRefName, mockHash("B"), 0)
	assert.ErrorIs(t, err, ErrConcurrentUpdate, "Concurrent creation should return CAS error")
}

// 作为 ca.Root 的索引器，每次 master 移动都会被记录
func TestRepository_IndexesRootWrites(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	root, err := ca.NewRoot(ctx, memory.New(), ca.Options{Indexer: repo})
	require.NoError(t, err)
	h, err := root.CreateRootHandler(ctx)
	require.NoError(t, err)

	vfstest.MustCreateFile(t, h, "a", "1")
	vfstest.MustCreateFile(t, h, "b", "2")

	master, err := root.GetMasterCommitID(ctx)
	require.NoError(t, err)

	ref, err := repo.GetRef(ctx, ca.MasterRefName)
	require.NoError(t, err)
	assert.Equal(t, master.String(), ref.CommitHash)

	logs, err := repo.History(ctx, ca.MasterRefName, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestRepository_RemoveRef(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	c := mustNewCommit(t, mockHash("t"), "snap")
	mustIndexCommit(t, repo, c, "refs/s", types.NilHash)

	require.NoError(t, repo.RemoveRef(ctx, "refs/s", c.ID()))

	_, err := repo.GetRef(ctx, "refs/s")
	assert.ErrorIs(t, err, ErrRefNotFound)

	logs, err := repo.History(ctx, "refs/s", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Empty(t, logs[0].New)
	assert.Equal(t, c.ID().String(), logs[0].Old)
	assert.JSONEq(t, `{"op":"remove"}`, string(logs[0].Detail))

	// commit 行保留
	_, err = repo.GetCommit(ctx, c.ID())
	require.NoError(t, err)

	// 未被索引过的 ref 只记流水
	require.NoError(t, repo.RemoveRef(ctx, "refs/none", types.NilHash))
}

// 删除快照会同步删掉索引里的 ref
func TestRepository_IndexesSnapshotRemoval(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	root, err := ca.NewRoot(ctx, memory.New(), ca.Options{Indexer: repo})
	require.NoError(t, err)
	h, err := root.CreateRootHandler(ctx)
	require.NoError(t, err)
	vfstest.MustCreateFile(t, h, "a", "1")

	_, err = root.CreateSnapshot(ctx, "s")
	require.NoError(t, err)
	_, err = repo.GetRef(ctx, "refs/s")
	require.NoError(t, err)

	require.NoError(t, root.RemoveSnapshot(ctx, "s"))
	_, err = repo.GetRef(ctx, "refs/s")
	assert.ErrorIs(t, err, ErrRefNotFound)
}

func TestOpen_Sqlite(t *testing.T) {
	db, err := Open(context.Background(), Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "meta.db")})
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, db.GetConn().Migrator().HasTable(&RefLog{}))

	_, err = Open(context.Background(), Config{Driver: "mysql"})
	assert.Error(t, err)
}
