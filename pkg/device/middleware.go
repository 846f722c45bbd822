package device

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// DeviceTokenHeader is the transport-level identity header. Absence is
// treated as anonymous, not as an error.
const DeviceTokenHeader = "X-Device-Token"

type contextKey int

const deviceContextKey contextKey = iota

// NewContext returns a context carrying the resolved device
func NewContext(ctx context.Context, d Device) context.Context {
	return context.WithValue(ctx, deviceContextKey, d)
}

// FromContext returns the resolved device stored by the middleware. The
// second return is false when no resolution ran (or it yielded anonymous and
// nothing was stored); treat that as no identity.
func FromContext(ctx context.Context) (Device, bool) {
	d, ok := ctx.Value(deviceContextKey).(Device)
	return d, ok
}

// Middleware resolves the device token header on every request and stores
// the trusted Device in the request context. Handlers downstream consume
// identity exclusively through FromContext - never from request bodies.
func Middleware(service *DeviceService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(DeviceTokenHeader)
			d, err := service.Resolve(r.Context(), token, ResolveMeta{
				UserAgent: r.UserAgent(),
				IPAddress: ClientIP(r),
			})
			if err != nil {
				// Resolve never fails today; guard anyway
				slog.Error("Device resolution failed", "err", err)
			}

			ctx := NewContext(r.Context(), d)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP extracts the client address from a request, best effort. The
// value is advisory only and never used for identity decisions.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
