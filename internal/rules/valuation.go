package rules

import (
	"math"
	"time"
)

// 衰减档位：点击到转化信号的间隔天数 → 折算系数
// 快速成交的线索价值最高，拖得越久归因给该次点击的价值越低
const (
	hotDays  = 3
	warmDays = 10

	hotMultiplier  = 0.5
	warmMultiplier = 0.25
	coldMultiplier = 0.1
)

// DecayedValue 按点击→信号间隔对基础价值做时间衰减。
// elapsedDays 用 ceil 计算：同一天内（含精确 0）算 0 天，任何跨零点前的
// 正间隔都进位到 1 天，两者均落在 HOT 档。
func DecayedValue(baseValue float64, clickAt, signalAt time.Time) float64 {
	base := sanitize(baseValue)

	elapsed := signalAt.Sub(clickAt)
	days := math.Ceil(elapsed.Hours() / 24)
	if days < 0 {
		days = 0
	}

	multiplier := coldMultiplier
	switch {
	case days <= hotDays:
		multiplier = hotMultiplier
	case days <= warmDays:
		multiplier = warmMultiplier
	}

	return math.Round(base * multiplier)
}

// LeadValue 估算线索货币价值：有实际成交价直接用，否则按 0-5 评分
// 对租户默认成交价折算比例
func LeadValue(score int, enteredPrice, siteDefaultValue float64) float64 {
	if p := sanitize(enteredPrice); p > 0 {
		return p
	}
	def := sanitize(siteDefaultValue)

	switch {
	case score <= 0:
		return 0
	case score <= 2:
		return math.Round(def * 0.1)
	case score == 3:
		return math.Round(def * 0.3)
	default:
		return def
	}
}

// sanitize 负数与非有限值一律按 0 处理，估值永不为负
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
