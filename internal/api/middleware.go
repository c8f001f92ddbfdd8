package api

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/nisiwa02/sleep-journal-app/internal/models"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization"
	corsMaxAge       = "600"
)

// originAllowed accepts requests without an Origin, allowlisted origins and
// any localhost origin.
func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range s.allowedOrigins {
		if o == origin || o == "*" {
			return true
		}
	}
	return strings.Contains(origin, "localhost")
}

// corsMiddleware echoes allowed origins and answers preflight requests.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		w.Header().Add("Vary", "Origin")

		if !s.originAllowed(origin) {
			slog.Warn("Server.corsMiddleware: origin not allowed", "origin", origin, "method", r.Method, "path", r.URL.Path)
			if r.Method == http.MethodOptions {
				writeError(w, http.StatusForbidden, models.ErrorTitleForbidden, "Origin not allowed")
				return
			}
			// Browsers block the response without the allow header.
			next.ServeHTTP(w, r)
			return
		}

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
			w.Header().Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware rejects clients over their fixed-window budget. Limiter
// failures let the request through.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		key := s.clientIP(r)
		decision, err := s.limiter.Allow(r.Context(), key)
		if err != nil {
			slog.Error("Server.rateLimitMiddleware: limiter unavailable, allowing request", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			retry := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			slog.Warn("Server.rateLimitMiddleware: rate limit exceeded", "client", key, "path", r.URL.Path, "retry_after_s", retry)
			writeError(w, http.StatusTooManyRequests, models.ErrorTitleTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the peer address, or the first X-Forwarded-For entry when
// the server runs behind a trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	if s.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
