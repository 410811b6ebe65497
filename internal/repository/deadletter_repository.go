package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/attribution/internal/model"
)

type DeadLetterRepository interface {
	Create(ctx context.Context, entry *model.DeadLetter) error
	GetByID(ctx context.Context, id string) (*model.DeadLetter, error)
	List(ctx context.Context, tenantID string, offset, limit int) ([]*model.DeadLetter, int64, error)
	RecordReplay(ctx context.Context, id string, replayErr *string) (*model.DeadLetter, error)
	CreateAudit(ctx context.Context, audit *model.ReplayAudit) error
}

type deadLetterRepository struct {
	db *gorm.DB
}

func NewDeadLetterRepository(db *gorm.DB) DeadLetterRepository {
	return &deadLetterRepository{db: db}
}

func (r *deadLetterRepository) Create(ctx context.Context, entry *model.DeadLetter) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *deadLetterRepository) GetByID(ctx context.Context, id string) (*model.DeadLetter, error) {
	var entry model.DeadLetter
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// List 按接收时间倒序分页，tenantID 为空查全部
func (r *deadLetterRepository) List(ctx context.Context, tenantID string, offset, limit int) ([]*model.DeadLetter, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.DeadLetter{})
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []*model.DeadLetter
	err := q.Order("received_at DESC").Offset(offset).Limit(limit).Find(&rows).Error
	return rows, total, err
}

// RecordReplay 一次重放的结果回写：replay_count 原子自增（只增不减），
// 成功清空 last_replay_error，失败记录错误文本
func (r *deadLetterRepository) RecordReplay(ctx context.Context, id string, replayErr *string) (*model.DeadLetter, error) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"replay_count":      gorm.Expr("replay_count + 1"),
		"last_replay_at":    &now,
		"last_replay_error": replayErr,
	}
	res := r.db.WithContext(ctx).Model(&model.DeadLetter{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *deadLetterRepository) CreateAudit(ctx context.Context, audit *model.ReplayAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(audit).Error
}
