package api

import (
	"crypto/subtle"
	"net/http"
	"sync"

	"github.com/NicholasBarkolias/job-booking-expo/internal/config"

	"golang.org/x/time/rate"
)

// HTTPAuth validates the API key header and rate-limits per key.
type HTTPAuth struct {
	cfg     config.APIConfig
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{cfg: cfg, limiter: newRateLimiter(&cfg)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(a.cfg.HeaderAPIKey)
		if !a.validKey(key) {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		if !a.limiter.getLimiter(key).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, known := range a.cfg.APIKeys {
		if subtle.ConstantTimeCompare([]byte(known.Key), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

type rateLimiter struct {
	limiters sync.Map
	cfg      *config.APIConfig
}

func newRateLimiter(cfg *config.APIConfig) *rateLimiter {
	return &rateLimiter{cfg: cfg}
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	burst := l.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(l.cfg.RateLimit.RPS), burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}
