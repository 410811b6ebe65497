package model

import "time"

// Session 访客会话（租户 + 会话 ID 唯一），首个事件创建，后续事件幂等更新
type Session struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)"`
	TenantID        string    `gorm:"type:varchar(36);index:idx_session_pair,unique;not null"`
	SessionID       string    `gorm:"type:varchar(64);index:idx_session_pair,unique;not null"`
	FirstLandingURL string    `gorm:"type:text"` // 已归一化的落地页
	Provider        string    `gorm:"type:varchar(32)"`
	FirstSeenAt     time.Time `gorm:"not null"` // 视为广告点击时间，用于衰减估值
	LastSeenAt      time.Time `gorm:"not null"`
	Score           int       `gorm:"not null;default:0"` // 0-5 线索评分
	EstimatedValue  float64   `gorm:"type:decimal(12,2);not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Session) TableName() string { return "sessions" }
