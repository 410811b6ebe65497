package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/attribution/internal/model"
)

type FallbackRepository interface {
	Create(ctx context.Context, msg *model.FallbackMessage) error
	ListPending(ctx context.Context, limit int) ([]*model.FallbackMessage, error)
	MarkRecovered(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id, reason string) error
}

type fallbackRepository struct {
	db *gorm.DB
}

func NewFallbackRepository(db *gorm.DB) FallbackRepository { return &fallbackRepository{db: db} }

func (r *fallbackRepository) Create(ctx context.Context, msg *model.FallbackMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Status == "" {
		msg.Status = model.FallbackStatusPending
	}
	return r.db.WithContext(ctx).Create(msg).Error
}

// ListPending 按入库顺序取待回灌的缓冲行
func (r *fallbackRepository) ListPending(ctx context.Context, limit int) ([]*model.FallbackMessage, error) {
	var rows []*model.FallbackMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.FallbackStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkRecovered 回灌成功：状态流转并记录处理时间，保留行本身做追溯
func (r *fallbackRepository) MarkRecovered(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&model.FallbackMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.FallbackStatusRecovered,
			"processed_at": &now,
		}).Error
}

// RecordFailure 回灌失败：仍停留在 PENDING，更新失败原因等下轮重试
func (r *fallbackRepository) RecordFailure(ctx context.Context, id, reason string) error {
	return r.db.WithContext(ctx).Model(&model.FallbackMessage{}).
		Where("id = ?", id).
		Update("error_reason", reason).Error
}
