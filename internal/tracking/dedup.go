package tracking

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/d60-Lab/attribution/internal/model"
)

// DedupID derives the stable idempotency key for an inbound event. Identical
// logical events always hash identically, so client retries inside the
// broker's dedup window collapse to a single delivery. The landing URL is
// normalized first so that tracking-parameter noise does not defeat dedup.
func DedupID(e *model.InboundEvent) string {
	parts := []string{
		e.TenantID,
		e.SessionID,
		NormalizeLandingURL(e.LandingURL),
		string(e.Category),
		e.Action,
		e.Fingerprint,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return "evt_" + hex.EncodeToString(sum[:16])
}
