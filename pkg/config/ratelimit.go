package config

// RateLimitConfig contains rate limiting settings for the control plane.
// Fields have no env tags - populate manually or use NewRateLimitConfigFromEnv().
type RateLimitConfig struct {
	// Per-device rate limiting (keyed by resolved device token)
	PerDeviceEnabled    bool
	PerDeviceCapacity   int
	PerDeviceRefillRate float64 // tokens per second

	// Suspicious devices get a much smaller bucket instead of an outright block
	SuspiciousCapacity   int
	SuspiciousRefillRate float64 // tokens per second

	// PIN redemption specific limits (brute force protection)
	RedeemEnabled    bool
	RedeemCapacity   int
	RedeemRefillRate float64 // tokens per second

	// IncludeHeaders controls whether rate limit headers are included in responses
	IncludeHeaders bool
}

// DefaultRateLimitConfig returns a RateLimitConfig with sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		// Per-device: ~120 requests per minute
		PerDeviceEnabled:    true,
		PerDeviceCapacity:   120,
		PerDeviceRefillRate: 2.0,

		// Suspicious: 10 per minute
		SuspiciousCapacity:   10,
		SuspiciousRefillRate: 0.167,

		// Redeem: 5 per minute (brute force protection)
		RedeemEnabled:    true,
		RedeemCapacity:   5,
		RedeemRefillRate: 0.083,

		IncludeHeaders: true,
	}
}

// NewRateLimitConfigFromEnv loads RateLimitConfig from standard environment variables.
//
// Environment variables:
//   - RATELIMIT_PER_DEVICE_ENABLED: Enable per-device rate limiting (default: true)
//   - RATELIMIT_PER_DEVICE_CAPACITY: Per-device bucket capacity (default: 120)
//   - RATELIMIT_PER_DEVICE_REFILL_RATE: Per-device refill rate in tokens/sec (default: 2.0)
//   - RATELIMIT_SUSPICIOUS_CAPACITY: Suspicious-device bucket capacity (default: 10)
//   - RATELIMIT_SUSPICIOUS_REFILL_RATE: Suspicious-device refill rate in tokens/sec (default: 0.167)
//   - RATELIMIT_REDEEM_ENABLED: Enable PIN redemption rate limiting (default: true)
//   - RATELIMIT_REDEEM_CAPACITY: Redemption bucket capacity (default: 5)
//   - RATELIMIT_REDEEM_REFILL_RATE: Redemption refill rate in tokens/sec (default: 0.083)
//   - RATELIMIT_INCLUDE_HEADERS: Include rate limit headers in responses (default: true)
func NewRateLimitConfigFromEnv() RateLimitConfig {
	return RateLimitConfig{
		PerDeviceEnabled:     GetEnvBool("RATELIMIT_PER_DEVICE_ENABLED", true),
		PerDeviceCapacity:    GetEnvInt("RATELIMIT_PER_DEVICE_CAPACITY", 120),
		PerDeviceRefillRate:  GetEnvFloat64("RATELIMIT_PER_DEVICE_REFILL_RATE", 2.0),
		SuspiciousCapacity:   GetEnvInt("RATELIMIT_SUSPICIOUS_CAPACITY", 10),
		SuspiciousRefillRate: GetEnvFloat64("RATELIMIT_SUSPICIOUS_REFILL_RATE", 0.167),
		RedeemEnabled:        GetEnvBool("RATELIMIT_REDEEM_ENABLED", true),
		RedeemCapacity:       GetEnvInt("RATELIMIT_REDEEM_CAPACITY", 5),
		RedeemRefillRate:     GetEnvFloat64("RATELIMIT_REDEEM_REFILL_RATE", 0.083),
		IncludeHeaders:       GetEnvBool("RATELIMIT_INCLUDE_HEADERS", true),
	}
}
