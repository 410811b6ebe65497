package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/attribution/internal/model"
)

type SessionRepository interface {
	Upsert(ctx context.Context, tenantID, sessionID, landingURL, provider string, seenAt time.Time) (*model.Session, error)
	UpdateValuation(ctx context.Context, id string, score int, value float64) error
	CreateSignal(ctx context.Context, sig *model.Signal) (bool, error)
	DailyCounts(ctx context.Context, tenantID string, day time.Time) (billable, nonBillable int64, err error)
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository { return &sessionRepository{db: db} }

// Upsert 按 (tenant, session) 幂等取或建会话：并发创建靠唯一键兜底，
// 冲突后回读已有行；已存在的会话只推进 last_seen_at
func (r *sessionRepository) Upsert(ctx context.Context, tenantID, sessionID, landingURL, provider string, seenAt time.Time) (*model.Session, error) {
	s := &model.Session{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		SessionID:       sessionID,
		FirstLandingURL: landingURL,
		Provider:        provider,
		FirstSeenAt:     seenAt,
		LastSeenAt:      seenAt,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(s)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return s, nil
	}

	var existing model.Session
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ?", tenantID, sessionID).
		First(&existing).Error; err != nil {
		return nil, err
	}
	if seenAt.After(existing.LastSeenAt) {
		if err := r.db.WithContext(ctx).Model(&existing).
			Update("last_seen_at", seenAt).Error; err != nil {
			return nil, err
		}
		existing.LastSeenAt = seenAt
	}
	return &existing, nil
}

// UpdateValuation 回写评分与估值
func (r *sessionRepository) UpdateValuation(ctx context.Context, id string, score int, value float64) error {
	return r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"score": score, "estimated_value": value}).Error
}

// CreateSignal 落库对账结果；dedup_id 冲突视为重复投递，返回 false 不报错
func (r *sessionRepository) CreateSignal(ctx context.Context, sig *model.Signal) (bool, error) {
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedup_id"}}, DoNothing: true}).
		Create(sig)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DailyCounts 按天统计计费/非计费信号数（报表用）
func (r *sessionRepository) DailyCounts(ctx context.Context, tenantID string, day time.Time) (int64, int64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var billable, nonBillable int64
	base := r.db.WithContext(ctx).Model(&model.Signal{}).
		Where("tenant_id = ? AND occurred_at >= ? AND occurred_at < ?", tenantID, start, end)
	if err := base.Session(&gorm.Session{}).Where("billable = ?", true).Count(&billable).Error; err != nil {
		return 0, 0, err
	}
	if err := base.Session(&gorm.Session{}).Where("billable = ?", false).Count(&nonBillable).Error; err != nil {
		return 0, 0, err
	}
	return billable, nonBillable, nil
}
