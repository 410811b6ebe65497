package tracking

import (
	"net/url"
	"strings"
)

// Parameters stripped from landing URLs before sessions are keyed on them.
// Covers UTM fields plus the click/targeting ids the major ad platforms
// append, so repeat visits through the same ad collapse to one session.
var strippedParams = map[string]struct{}{
	"gclid":     {},
	"gbraid":    {},
	"wbraid":    {},
	"dclid":     {},
	"fbclid":    {},
	"msclkid":   {},
	"ttclid":    {},
	"twclid":    {},
	"li_fat_id": {},
	"yclid":     {},
	"mc_eid":    {},
	"igshid":    {},
}

const utmPrefix = "utm_"

// NormalizeLandingURL canonicalizes a tracking URL: drops the fragment,
// removes tracking parameters and reserializes with sorted query keys.
// Deterministic and idempotent. A malformed URL degrades to truncation at
// the first '#' and '?' instead of failing.
func NormalizeLandingURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return truncate(raw)
	}

	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for key := range q {
		if _, drop := strippedParams[strings.ToLower(key)]; drop {
			q.Del(key)
			continue
		}
		if strings.HasPrefix(strings.ToLower(key), utmPrefix) {
			q.Del(key)
		}
	}
	// Encode sorts keys, which is what makes normalization idempotent.
	u.RawQuery = q.Encode()

	return u.String()
}

func truncate(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
