package transporthttp

import (
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// BodyLimit limits request bodies to maxBytes.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSON ensures Content-Type is application/json for POST endpoints.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if r.Method == http.MethodPost && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			WriteProblem(w, Problem{Status: http.StatusUnsupportedMediaType, Title: "unsupported media type", Detail: "expected application/json"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// APIKeyAuth allows an optional list of API keys; if the list is empty, auth is bypassed.
// Keys are expected in header: X-API-Key.
func APIKeyAuth(allowed map[string]struct{}) func(http.Handler) http.Handler {
	if len(allowed) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if _, ok := allowed[key]; !ok {
				WriteProblem(w, Problem{Status: http.StatusUnauthorized, Title: "unauthorized", Detail: "invalid or missing API key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// RateLimitPerMinute is a global token bucket holding limitPerMin tokens
// and refilling at the same rate. limitPerMin <= 0 disables it.
func RateLimitPerMinute(limitPerMin int, now func() time.Time) func(http.Handler) http.Handler {
	if limitPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	capacity := float64(limitPerMin)
	refillPerSec := capacity / 60.0
	b := &bucket{tokens: capacity, lastRefill: now()}
	// Seconds until one token is back.
	retryAfter := int(math.Ceil(1 / refillPerSec))

	take := func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		t := now()
		b.tokens += t.Sub(b.lastRefill).Seconds() * refillPerSec
		b.lastRefill = t
		if b.tokens > capacity {
			b.tokens = capacity
		}
		if b.tokens < 1.0 {
			return false
		}
		b.tokens--
		return true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !take() {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				WriteProblem(w, Problem{
					Type:              ProblemRateLimited,
					Status:            http.StatusTooManyRequests,
					Title:             "rate limit exceeded",
					Detail:            "try again later",
					RetryAfterSeconds: retryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DrainBody fully reads and closes request bodies (handler helper).
func DrainBody(r *http.Request) {
	if r.Body != nil {
		_, _ = io.Copy(io.Discard, r.Body)
		_ = r.Body.Close()
	}
}
