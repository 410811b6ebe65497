package model

import "time"

// 失败阶段
const (
	StageDecode  = "decode"
	StageMatch   = "match"
	StagePersist = "persist"
	StageReplay  = "replay"
)

// DeadLetter 死信行：对账失败的消息连同错误上下文落库，只追加、只标记，从不删除
type DeadLetter struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)"`
	ReceivedAt      time.Time  `gorm:"index;not null"`
	TenantID        string     `gorm:"type:varchar(36);index"`
	Stage           string     `gorm:"type:varchar(16);not null"`
	ErrorText       string     `gorm:"type:text;not null"`
	BrokerMessageID string     `gorm:"type:varchar(64)"`
	DedupEventID    string     `gorm:"type:varchar(64);index"`
	Payload         string     `gorm:"type:text;not null"`
	ReplayCount     int        `gorm:"not null;default:0"` // 只增不减
	LastReplayAt    *time.Time
	LastReplayError *string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (DeadLetter) TableName() string { return "dead_letters" }

// ReplayAudit 重放审计行，每次重放写一条，成功失败都记，不可变
type ReplayAudit struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	DeadLetterID string    `gorm:"type:varchar(36);index;not null"`
	Actor        string    `gorm:"type:varchar(64);not null"`
	ReplayCount  int       `gorm:"not null"` // 本次重放后的计数
	Error        *string   `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"index"`
}

func (ReplayAudit) TableName() string { return "replay_audits" }
