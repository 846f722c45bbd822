package device

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	service := NewDeviceService(NewInMemDeviceRepository())

	var captured Device
	var ok bool
	handler := Middleware(service)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, ok = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("WithToken", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(DeviceTokenHeader, "tok-mw")
		req.Header.Set("User-Agent", "hush/1.0")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		require.True(t, ok)
		assert.Equal(t, "tok-mw", captured.DeviceID)
		assert.Equal(t, "hush/1.0", captured.UserAgent)
	})

	t.Run("WithoutToken", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		require.True(t, ok)
		assert.True(t, captured.Anonymous())
	})
}

func TestClientIP(t *testing.T) {
	t.Run("ForwardedFor", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.1")
		assert.Equal(t, "198.51.100.9", ClientIP(req))
	})

	t.Run("RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "203.0.113.7:4321"
		assert.Equal(t, "203.0.113.7", ClientIP(req))
	})
}
