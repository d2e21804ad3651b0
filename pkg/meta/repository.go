package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"c2fs/pkg/core"
	"c2fs/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRefNotFound      = errors.New("reference not found")
	ErrConcurrentUpdate = errors.New("concurrent update detected (CAS failed)")
	ErrCommitNotFound   = errors.New("commit not found in metadata")
)

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// -----------------------------------------------------------------------------
// 1. 引用 (Refs)
// -----------------------------------------------------------------------------

func (r *Repository) GetRef(ctx context.Context, name string) (*Ref, error) {
	var ref Ref
	err := r.db.GetConn().WithContext(ctx).
		Where("name = ?", name).
		First(&ref).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRefNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// swapRef 原子更新引用 (CAS)
// oldVersion 为 0 表示创建；版本号不匹配时返回 ErrConcurrentUpdate
func (r *Repository) swapRef(ctx context.Context, name string, newHash types.Hash, oldVersion int64) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return updateRef(tx, name, newHash, oldVersion)
	})
}

func updateRef(tx *gorm.DB, name string, newHash types.Hash, oldVersion int64) error {
	if oldVersion == 0 {
		ref := Ref{
			Name:       name,
			CommitHash: newHash.String(),
			Version:    1,
		}
		if err := tx.Create(&ref).Error; err != nil {
			// 兼容 PG 与 SQLite 的唯一约束错误
			if errors.Is(err, gorm.ErrDuplicatedKey) ||
				strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return ErrConcurrentUpdate
			}
			return fmt.Errorf("failed to create ref: %w", err)
		}
		return nil
	}

	// UPDATE refs SET commit_hash = ?, version = version + 1 WHERE name = ? AND version = ?
	result := tx.Model(&Ref{}).
		Where("name = ? AND version = ?", name, oldVersion).
		Updates(map[string]any{
			"commit_hash": newHash.String(),
			"version":     gorm.Expr("version + 1"),
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

// -----------------------------------------------------------------------------
// 2. 提交索引
// -----------------------------------------------------------------------------

// IndexCommit 记录 ref 从 previous 移动到 c
// Commit 行按 Hash 幂等写入；每次调用追加一条 RefLog
func (r *Repository) IndexCommit(ctx context.Context, c *core.Commit, ref string, previous types.Hash) error {
	detail, err := json.Marshal(map[string]string{
		"message": c.Message,
		"tree":    c.Tree().String(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal reflog detail: %w", err)
	}

	model := CommitModel{
		Hash:      c.ID().String(),
		Message:   c.Message,
		Timestamp: c.Timestamp,
		TreeHash:  c.Tree().String(),
		CreatedAt: time.Unix(0, c.Timestamp),
	}
	entry := RefLog{
		Ref:    ref,
		New:    c.ID().String(),
		Detail: datatypes.JSON(detail),
	}
	if !previous.IsZero() {
		entry.Old = previous.String()
	}

	err = r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 如果 Hash 已存在，则什么都不做
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash"}},
			DoNothing: true,
		}).Create(&model).Error; err != nil {
			return err
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		var current Ref
		err := tx.Where("name = ?", ref).First(&current).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return updateRef(tx, ref, c.ID(), 0)
		case err != nil:
			return err
		default:
			return updateRef(tx, ref, c.ID(), current.Version)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to index commit: %w", err)
	}
	return nil
}

// RemoveRef 记录 ref 被删除: 追加一条 New 为空的 RefLog，并删掉 Ref 行
// 数据库里本来就没有这个 ref 时只记流水
func (r *Repository) RemoveRef(ctx context.Context, ref string, previous types.Hash) error {
	detail, err := json.Marshal(map[string]string{"op": "remove"})
	if err != nil {
		return fmt.Errorf("failed to marshal reflog detail: %w", err)
	}
	entry := RefLog{Ref: ref, Detail: datatypes.JSON(detail)}
	if !previous.IsZero() {
		entry.Old = previous.String()
	}

	err = r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		var current Ref
		err := tx.Where("name = ?", ref).First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		result := tx.Where("name = ? AND version = ?", ref, current.Version).Delete(&Ref{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove ref: %w", err)
	}
	return nil
}

func (r *Repository) GetCommit(ctx context.Context, hash types.Hash) (*CommitModel, error) {
	var commit CommitModel
	err := r.db.GetConn().WithContext(ctx).
		Where("hash = ?", hash.String()).
		First(&commit).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCommitNotFound
	}
	if err != nil {
		return nil, err
	}
	return &commit, nil
}

// ListCommits 按时间倒序返回最近的提交
func (r *Repository) ListCommits(ctx context.Context, limit int) ([]CommitModel, error) {
	var commits []CommitModel
	err := r.db.GetConn().WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&commits).Error
	return commits, err
}

// History 返回某个 ref 的移动记录，最新的在前
func (r *Repository) History(ctx context.Context, ref string, limit int) ([]RefLog, error) {
	var logs []RefLog
	err := r.db.GetConn().WithContext(ctx).
		Where("ref = ?", ref).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
