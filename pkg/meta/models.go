package meta

import (
	"time"

	"gorm.io/datatypes"
)

// Ref 记录每个 ref 最后一次被索引到的位置
// 对应对象池里的 refs/heads/master 与 refs/<snapshot>
type Ref struct {
	// Name 是主键，例如 "refs/heads/master"
	Name string `gorm:"primaryKey;type:varchar(255)"`

	CommitHash string `gorm:"type:char(40);not null"`

	// Version 用于乐观锁并发控制 (CAS)
	Version int64 `gorm:"default:1"`

	UpdatedAt time.Time
}

// CommitModel 是 core.Commit 在关系型数据库中的投影
type CommitModel struct {
	Hash string `gorm:"primaryKey;type:char(40)"`

	Message   string `gorm:"type:text"`
	Timestamp int64  `gorm:"index"` // 纳秒

	TreeHash string `gorm:"type:char(40);not null"`

	CreatedAt time.Time
}

func (CommitModel) TableName() string {
	return "commits"
}

// RefLog 是 ref 移动的流水
type RefLog struct {
	ID  uint   `gorm:"primaryKey"`
	Ref string `gorm:"index;type:varchar(255)"`

	// Old 为空表示 ref 第一次出现，New 为空表示 ref 被删除
	Old string `gorm:"type:char(40)"`
	New string `gorm:"type:char(40);not null"`

	// Detail: {"message": ..., "tree": ...}，删除时为 {"op": "remove"}
	Detail datatypes.JSON

	CreatedAt time.Time
}

func (RefLog) TableName() string {
	return "ref_logs"
}

// Models 返回需要迁移的全部表
func Models() []any {
	return []any{&Ref{}, &CommitModel{}, &RefLog{}}
}
