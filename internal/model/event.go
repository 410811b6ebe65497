package model

import (
	"encoding/json"
	"math"
	"time"
)

// EventCategory 事件大类
type EventCategory string

const (
	CategoryConversion  EventCategory = "conversion"
	CategoryInteraction EventCategory = "interaction"
	CategorySystem      EventCategory = "system"
)

// 常见 action 常量（action 本身为自由字符串，未知值走默认计费分支）
const (
	ActionView        = "view"
	ActionScrollDepth = "scroll_depth"
)

// InboundEvent 客户端上报的一次事件，入队后不可变
type InboundEvent struct {
	TenantID    string         `json:"tenant_id" binding:"required"`
	SessionID   string         `json:"session_id" binding:"required"`
	Category    EventCategory  `json:"category" binding:"required,eventcategory"`
	Action      string         `json:"action" binding:"required"`
	LandingURL  string         `json:"landing_url"`
	Provider    string         `json:"provider"` // 广告渠道标识，用于并发信号量分组
	Fingerprint string         `json:"fingerprint"`
	Metadata    map[string]any `json:"metadata"`
	OccurredAt  time.Time      `json:"occurred_at" binding:"required"`
}

// MetaNumber 从 metadata 读取数值字段；缺失、类型不符或非有限值返回 (0, false)
func (e *InboundEvent) MetaNumber(key string) (float64, bool) {
	raw, ok := e.Metadata[key]
	if !ok {
		return 0, false
	}
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// QueueMessage broker 投递信封
type QueueMessage struct {
	URL             string          `json:"url"`
	Body            json.RawMessage `json:"body"`
	DeduplicationID string          `json:"deduplicationId"`
	Retries         int             `json:"retries"`
}
