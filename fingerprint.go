package network

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
)

// DefaultFingerprint builds the canonical identity of a request:
// "METHOD:url" with the method upper-cased and the query parameters
// re-serialized in sorted key order, plus ":bodydigest" when the request
// carries a replayable body. It is pure and total: a missing body or query
// contributes nothing, and two requests differing only in query parameter
// order yield the same fingerprint. Keys stay readable so cache
// invalidation patterns can target them.
func DefaultFingerprint(req *http.Request) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(req.Method))
	b.WriteByte(':')

	if req.URL != nil {
		u := *req.URL
		// url.Values.Encode sorts by key, giving order independence.
		u.RawQuery = u.Query().Encode()
		u.Fragment = ""
		b.WriteString(u.String())
	}

	if req.Body != nil && req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			sum := sha256.New()
			if _, err := io.Copy(sum, body); err == nil {
				b.WriteByte(':')
				b.WriteString(hex.EncodeToString(sum.Sum(nil)[:8]))
			}
			_ = body.Close()
		}
	}

	return b.String()
}

// DefaultDeduplicationCondition enables single-flight collapsing for safe
// idempotent methods.
func DefaultDeduplicationCondition(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
