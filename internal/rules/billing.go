package rules

import "github.com/d60-Lab/attribution/internal/model"

// Verdict 计费判定结果
type Verdict struct {
	Billable bool
	Reason   string
}

// 判定理由常量，落库到 signals.bill_reason
const (
	ReasonConversion      = "conversion"
	ReasonInteractionView = "interaction_view"
	ReasonScrollDepth     = "scroll_depth"
	ReasonSystem          = "system"
	ReasonDefaultBillable = "default_billable"
)

// Classify 按序匹配计费规则表，首条命中生效。
// 未识别的新事件类型默认计费：宁可多算后人工冲正，不可漏计。
func Classify(category model.EventCategory, action string) Verdict {
	switch category {
	case model.CategoryConversion:
		return Verdict{Billable: true, Reason: ReasonConversion}
	case model.CategoryInteraction:
		switch action {
		case model.ActionView:
			return Verdict{Billable: true, Reason: ReasonInteractionView}
		case model.ActionScrollDepth:
			return Verdict{Billable: false, Reason: ReasonScrollDepth}
		}
	case model.CategorySystem:
		return Verdict{Billable: false, Reason: ReasonSystem}
	}
	return Verdict{Billable: true, Reason: ReasonDefaultBillable}
}
