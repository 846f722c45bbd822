package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hushapp/anonid/pkg/config"
	"github.com/hushapp/anonid/pkg/device"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(d device.Device) *http.Request {
	r := httptest.NewRequest("GET", "/api/devices/me", nil)
	return r.WithContext(device.NewContext(r.Context(), d))
}

func TestMiddleware_PerDeviceLimit(t *testing.T) {
	cfg := config.DefaultRateLimitConfig()
	cfg.PerDeviceCapacity = 2
	cfg.PerDeviceRefillRate = 0.01

	handler := NewMiddleware(cfg).Handler(okHandler())
	d := device.Device{DeviceID: "tok-a"}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestAs(d))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(d))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A different device draws from its own bucket
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(device.Device{DeviceID: "tok-b"}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_SuspiciousBucket(t *testing.T) {
	cfg := config.DefaultRateLimitConfig()
	cfg.PerDeviceCapacity = 100
	cfg.SuspiciousCapacity = 1
	cfg.SuspiciousRefillRate = 0.01

	handler := NewMiddleware(cfg).Handler(okHandler())
	d := device.Device{DeviceID: "tok-sus", IsSuspicious: true}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(d))
	assert.Equal(t, http.StatusOK, rec.Code, "suspicious devices are throttled, not blocked")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(d))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "suspicious device should hit the small bucket")
}

func TestMiddleware_AnonymousFallsBackToIP(t *testing.T) {
	cfg := config.DefaultRateLimitConfig()
	cfg.PerDeviceCapacity = 1
	cfg.PerDeviceRefillRate = 0.01

	handler := NewMiddleware(cfg).Handler(okHandler())

	anon := httptest.NewRequest("GET", "/", nil)
	anon.RemoteAddr = "203.0.113.7:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, anon)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, anon)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "same IP shares one anonymous bucket")
}

func TestMiddleware_RedeemHandler(t *testing.T) {
	cfg := config.DefaultRateLimitConfig()
	cfg.RedeemCapacity = 1
	cfg.RedeemRefillRate = 0.01

	m := NewMiddleware(cfg)
	handler := m.RedeemHandler(okHandler())
	d := device.Device{DeviceID: "tok-a"}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(d))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(d))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// The general handler is unaffected by the redeem budget
	rec = httptest.NewRecorder()
	m.Handler(okHandler()).ServeHTTP(rec, requestAs(d))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_Reset(t *testing.T) {
	cfg := config.DefaultRateLimitConfig()
	cfg.PerDeviceCapacity = 1
	cfg.PerDeviceRefillRate = 0.01
	cfg.RedeemCapacity = 1
	cfg.RedeemRefillRate = 0.01

	m := NewMiddleware(cfg)
	d := device.Device{DeviceID: "tok-a"}

	rec := httptest.NewRecorder()
	m.Handler(okHandler()).ServeHTTP(rec, requestAs(d))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	m.Handler(okHandler()).ServeHTTP(rec, requestAs(d))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	m.Reset(d.DeviceID)

	rec = httptest.NewRecorder()
	m.Handler(okHandler()).ServeHTTP(rec, requestAs(d))
	assert.Equal(t, http.StatusOK, rec.Code, "reset device should start with a fresh budget")
}

func TestMiddleware_Disabled(t *testing.T) {
	cfg := config.RateLimitConfig{}

	handler := NewMiddleware(cfg).Handler(okHandler())
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestAs(device.Device{DeviceID: "tok-a"}))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should pass with limiting disabled", i+1)
	}
}
