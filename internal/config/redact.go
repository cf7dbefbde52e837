package config

import (
	"net/url"
	"strings"
)

const redacted = "***REDACTED***"

var redactParams = map[string]struct{}{
	"apikey":       {},
	"api_key":      {},
	"api-key":      {},
	"key":          {},
	"token":        {},
	"access_token": {},
	"secret":       {},
}

// RedactURL hides credentials in an RPC URL: userinfo, key-like query
// parameters and path segments that look like API keys.
func RedactURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redacted
	}

	if u.User != nil {
		u.User = url.User(redacted)
	}

	q := u.Query()
	for k := range q {
		if _, ok := redactParams[strings.ToLower(k)]; ok {
			q.Set(k, redacted)
		}
	}
	u.RawQuery = q.Encode()

	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		if looksLikeKey(seg) {
			segments[i] = redacted
		}
	}
	u.Path = strings.Join(segments, "/")
	u.RawPath = ""

	// Keep the markers readable instead of percent-encoded.
	out := u.String()
	out = strings.ReplaceAll(out, url.QueryEscape(redacted), redacted)
	out = strings.ReplaceAll(out, url.PathEscape(redacted), redacted)
	return out
}

// looksLikeKey matches long opaque tokens such as Alchemy or Infura keys.
func looksLikeKey(seg string) bool {
	if len(seg) < 20 {
		return false
	}
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
