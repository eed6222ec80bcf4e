package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	. "github.com/sellerdesk/walink/internal/logging"
)

// secretAuth enforces the shared-secret bearer token. Unauthenticated
// requests are rejected here, before any session lookup.
func (s *Server) secretAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIP(r)

		if s.rateLimiter.IsLimited(clientIP) {
			L_warn("api: rate limited", "ip", clientIP)
			writeError(w, http.StatusTooManyRequests, "too many failed attempts")
			return
		}

		token := bearerToken(r)
		if token == "" || !secretsEqual([]byte(token), s.secret) {
			s.rateLimiter.RecordFailure(clientIP)
			L_warn("api: auth failed", "ip", clientIP, "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		s.rateLimiter.ClearFailure(clientIP)
		handler(w, r)
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// secretsEqual compares secrets in constant time. Hashing first removes the
// length channel.
func secretsEqual(a, b []byte) bool {
	ha := sha256.Sum256(a)
	hb := sha256.Sum256(b)
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	// X-Forwarded-For first (if behind reverse proxy)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Strip the port from RemoteAddr
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		return addr[:idx]
	}
	return addr
}
