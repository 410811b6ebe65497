package rules

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecayedValueBuckets(t *testing.T) {
	click := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		base    float64
		elapsed time.Duration
		want    float64
	}{
		{"hot: 2 days", 100, 48 * time.Hour, 50},
		{"warm: 5 days", 100, 5 * 24 * time.Hour, 25},
		{"cold: 11 days", 100, 11 * 24 * time.Hour, 10},
		{"hot boundary: exactly 3 days", 100, 3 * 24 * time.Hour, 50},
		{"warm boundary: just past 3 days", 100, 3*24*time.Hour + time.Minute, 25},
		{"warm boundary: exactly 10 days", 100, 10 * 24 * time.Hour, 25},
		{"cold boundary: just past 10 days", 100, 10*24*time.Hour + time.Minute, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DecayedValue(tc.base, click, click.Add(tc.elapsed)))
		})
	}
}

// ceil 语义：精确 0 间隔算 0 天，任何正的不足一天间隔进位到 1 天，都在 HOT 档
func TestDecayedValueCeilBoundary(t *testing.T) {
	click := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 50.0, DecayedValue(100, click, click))
	assert.Equal(t, 50.0, DecayedValue(100, click, click.Add(time.Second)))
	assert.Equal(t, 50.0, DecayedValue(100, click, click.Add(23*time.Hour)))
}

func TestDecayedValueDefensiveInputs(t *testing.T) {
	now := time.Now()

	assert.Equal(t, 0.0, DecayedValue(-5, now, now))
	assert.Equal(t, 0.0, DecayedValue(math.NaN(), now, now))
	assert.Equal(t, 0.0, DecayedValue(math.Inf(1), now, now))
	// signal before click clamps to 0 days, not negative
	assert.Equal(t, 50.0, DecayedValue(100, now, now.Add(-2*time.Hour)))
}

func TestLeadValueScoreProxy(t *testing.T) {
	cases := []struct {
		score int
		want  float64
	}{
		{0, 0},
		{-1, 0},
		{1, 100},
		{2, 100},
		{3, 300},
		{4, 1000},
		{5, 1000},
		{9, 1000}, // 超出量表按满分处理
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LeadValue(tc.score, 0, 1000), "score=%d", tc.score)
	}
}

func TestLeadValueEnteredPriceWins(t *testing.T) {
	assert.Equal(t, 250.0, LeadValue(0, 250, 1000))
	assert.Equal(t, 250.0, LeadValue(5, 250, 1000))
}

func TestLeadValueDefensiveInputs(t *testing.T) {
	assert.Equal(t, 100.0, LeadValue(2, -50, 1000), "negative entered price falls through to proxy")
	assert.Equal(t, 0.0, LeadValue(2, 0, math.NaN()))
	assert.Equal(t, 0.0, LeadValue(5, math.Inf(1), -1000))
}
