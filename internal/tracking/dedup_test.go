package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/d60-Lab/attribution/internal/model"
)

func sampleEvent() *model.InboundEvent {
	return &model.InboundEvent{
		TenantID:    "t1",
		SessionID:   "s1",
		Category:    model.CategoryInteraction,
		Action:      model.ActionView,
		LandingURL:  "https://shop.example.com/?utm_source=google&page=1",
		Fingerprint: "fp-abc",
		OccurredAt:  time.Now(),
	}
}

func TestDedupIDStable(t *testing.T) {
	a := sampleEvent()
	b := sampleEvent()
	// client timestamps differ on retry but must not change the id
	b.OccurredAt = b.OccurredAt.Add(3 * time.Second)
	b.Metadata = map[string]any{"retry": true}

	assert.Equal(t, DedupID(a), DedupID(b))
}

func TestDedupIDIgnoresTrackingParamNoise(t *testing.T) {
	a := sampleEvent()
	b := sampleEvent()
	b.LandingURL = "https://shop.example.com/?page=1&gclid=zzz&utm_campaign=q4"

	assert.Equal(t, DedupID(a), DedupID(b),
		"normalized-equal landing URLs must dedup together")
}

func TestDedupIDDiscriminates(t *testing.T) {
	base := DedupID(sampleEvent())

	byTenant := sampleEvent()
	byTenant.TenantID = "t2"
	bySession := sampleEvent()
	bySession.SessionID = "s2"
	byAction := sampleEvent()
	byAction.Action = model.ActionScrollDepth
	byFingerprint := sampleEvent()
	byFingerprint.Fingerprint = "fp-other"

	for _, e := range []*model.InboundEvent{byTenant, bySession, byAction, byFingerprint} {
		assert.NotEqual(t, base, DedupID(e))
	}
}
