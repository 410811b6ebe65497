package model

import "time"

// Signal 对账后的事件落库结果，dedup_id 唯一保证同一逻辑事件只落一条
type Signal struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)"`
	TenantID        string    `gorm:"type:varchar(36);index:idx_signal_tenant;not null"`
	SessionID       string    `gorm:"type:varchar(64);index;not null"`
	DedupID         string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	Category        string    `gorm:"type:varchar(16);not null"`
	Action          string    `gorm:"type:varchar(64);not null"`
	LandingURL      string    `gorm:"type:text"`
	Billable        bool      `gorm:"not null"`
	BillReason      string    `gorm:"type:varchar(32);not null"`
	Value           float64   `gorm:"type:decimal(12,2);not null;default:0"`
	BrokerMessageID string    `gorm:"type:varchar(64)"`
	OccurredAt      time.Time `gorm:"index:idx_signal_tenant;not null"`
	CreatedAt       time.Time
}

func (Signal) TableName() string { return "signals" }
