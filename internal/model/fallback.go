package model

import "time"

// FallbackMessage 发布失败时的兜底缓冲行，由回收任务扫描重发
type FallbackMessage struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)"`
	TenantID    string     `gorm:"type:varchar(36);index:idx_fallback_tenant"`
	Destination string     `gorm:"type:text;not null"`
	DedupID     string     `gorm:"type:varchar(64);not null"`
	Payload     string     `gorm:"type:text;not null"` // 原始 JSON 事件体
	ErrorReason *string    `gorm:"type:text"`
	Status      string     `gorm:"type:varchar(16);index;not null;default:'PENDING'"`
	ProcessedAt *time.Time
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

func (FallbackMessage) TableName() string { return "fallback_messages" }

// 兜底缓冲状态
const (
	FallbackStatusPending   = "PENDING"
	FallbackStatusRecovered = "RECOVERED"
)
