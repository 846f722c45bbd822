package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hushapp/anonid/pkg/config"
	"github.com/hushapp/anonid/pkg/device"
)

// Middleware throttles requests per device. Buckets are keyed by the
// resolved device token; anonymous requests fall back to the client IP so a
// flood of tokenless traffic still gets squeezed. Suspicious devices are not
// blocked outright, they just draw from a much smaller bucket.
type Middleware struct {
	cfg           config.RateLimitConfig
	deviceLimiter *Limiter
	susLimiter    *Limiter
	redeemLimiter *Limiter
}

// Inactive buckets are dropped after an hour without traffic
const bucketTTL = 1 * time.Hour

// NewMiddleware creates the rate limiting middleware from config
func NewMiddleware(cfg config.RateLimitConfig) *Middleware {
	m := &Middleware{cfg: cfg}

	if cfg.PerDeviceEnabled {
		m.deviceLimiter = NewLimiter(cfg.PerDeviceCapacity, cfg.PerDeviceRefillRate, bucketTTL)
		m.susLimiter = NewLimiter(cfg.SuspiciousCapacity, cfg.SuspiciousRefillRate, bucketTTL)
	}
	if cfg.RedeemEnabled {
		m.redeemLimiter = NewLimiter(cfg.RedeemCapacity, cfg.RedeemRefillRate, bucketTTL)
	}

	return m
}

// Handler returns the per-device rate limiting handler. It must sit after
// the device resolution middleware in the chain.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.deviceLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		d, _ := device.FromContext(r.Context())
		key := d.DeviceID
		if key == "" {
			key = "ip:" + device.ClientIP(r)
		}

		limiter := m.deviceLimiter
		capacity := m.cfg.PerDeviceCapacity
		if d.IsSuspicious {
			limiter = m.susLimiter
			capacity = m.cfg.SuspiciousCapacity
		}

		if !limiter.Allow(key) {
			m.rateLimitExceeded(w, r, d.DeviceID, "device")
			return
		}

		if m.cfg.IncludeHeaders {
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", capacity))
		}

		next.ServeHTTP(w, r)
	})
}

// RedeemHandler returns a stricter handler for the PIN redemption endpoint.
// Guess traffic is bounded here independently of the general per-device
// budget.
func (m *Middleware) RedeemHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.redeemLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		d, _ := device.FromContext(r.Context())
		key := d.DeviceID
		if key == "" {
			key = "ip:" + device.ClientIP(r)
		}

		if !m.redeemLimiter.Allow(key) {
			m.rateLimitExceeded(w, r, d.DeviceID, "redeem")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitExceeded handles rate limit exceeded responses
func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, deviceID, limitType string) {
	slog.Warn("Rate limit exceeded",
		"type", limitType,
		"deviceID", deviceID,
		"ip", device.ClientIP(r),
		"path", r.URL.Path,
		"method", r.Method,
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "60")
	w.WriteHeader(http.StatusTooManyRequests)

	fmt.Fprintf(w, `{
		"error": "rate_limit_exceeded",
		"message": "Too many requests. Please try again later.",
		"type": "%s"
	}`, limitType)
}

// Reset clears the buckets for a device token so a reinstated device does
// not start throttled by its pre-revocation traffic
func (m *Middleware) Reset(deviceID string) {
	if m.deviceLimiter != nil {
		m.deviceLimiter.Forget(deviceID)
		m.susLimiter.Forget(deviceID)
	}
	if m.redeemLimiter != nil {
		m.redeemLimiter.Forget(deviceID)
	}
}
