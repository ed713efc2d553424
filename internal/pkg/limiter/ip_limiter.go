/*
Package limiter provides rate limiting keyed by client IP address.

It uses the token bucket algorithm (rate.Limiter) per IP and a cleanup
goroutine that removes inactive limiters.
*/
package limiter

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lobbyhub/internal/pkg/errs"
	"lobbyhub/internal/pkg/logx"
	"lobbyhub/internal/pkg/resp"
)

// IPRateLimiter is a per-IP token bucket limiter.
type IPRateLimiter struct {
	mu     sync.RWMutex
	limits map[string]*rate.Limiter
	r      rate.Limit
	b      int
}

// NewIPRateLimiter creates a limiter with rate r and burst b, and starts the
// background cleanup goroutine.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	i := &IPRateLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
	}

	go i.cleanUpVisitors()

	return i
}

// GetLimiter retrieves or creates the limiter for the given IP.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.RLock()
	limiter, exists := i.limits[ip]
	i.mu.RUnlock()

	if !exists {
		i.mu.Lock()
		limiter, exists = i.limits[ip]
		if !exists {
			limiter = rate.NewLimiter(i.r, i.b)
			i.limits[ip] = limiter
		}
		i.mu.Unlock()
	}

	return limiter
}

// cleanUpVisitors periodically removes limiters whose buckets are full again.
func (i *IPRateLimiter) cleanUpVisitors() {
	ticker := time.NewTicker(3 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		i.mu.Lock()
		count := 0
		for ip, limiter := range i.limits {
			if limiter.TokensAt(time.Now()) >= float64(limiter.Burst()) {
				delete(i.limits, ip)
				count++
			}
		}
		active := len(i.limits)
		i.mu.Unlock()

		logx.Info("Rate limiter cleanup finished", "removed", count, "active", active)
	}
}

// Middleware rejects requests exceeding the limit with HTTP 429.
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if ip == "" {
			ip = "unknown_ip"
		}

		if !i.GetLimiter(ip).Allow() {
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimited))
			return
		}

		next.ServeHTTP(w, r)
	})
}
