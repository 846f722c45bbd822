package config

import (
	"fmt"
	"math"
	"time"
)

// SecurityConfig contains the policy knobs for the security control plane.
// Fields have no env tags - populate manually or use NewSecurityConfigFromEnv().
type SecurityConfig struct {
	// AdminCapacity is the hard ceiling on concurrently held admin grants
	AdminCapacity int

	// Cross-device link PINs
	PinLength int           // Number of decimal digits in a link PIN
	PinTTL    time.Duration // How long an issued PIN stays redeemable
	// LinkSecret is the master secret the PIN hashing key is derived from.
	// Required in production; the inmem demo generates an ephemeral one.
	LinkSecret string

	// Suspicion scoring
	SuspicionThreshold int           // Failed-auth count that flips a device to suspicious
	SuspicionWindow    time.Duration // Window the threshold is evaluated over
}

// DefaultSecurityConfig returns a SecurityConfig with the defaults observed in
// production. AdminCapacity 2 and a 6-digit PIN with a 5 minute TTL keep
// offline brute force infeasible at expected request rates.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		AdminCapacity:      2,
		PinLength:          6,
		PinTTL:             5 * time.Minute,
		SuspicionThreshold: 5,
		SuspicionWindow:    15 * time.Minute,
	}
}

// NewSecurityConfigFromEnv loads SecurityConfig from standard environment variables.
//
// Environment variables:
//   - SECURITY_ADMIN_CAPACITY: Max concurrent admin grants (default: 2)
//   - SECURITY_PIN_LENGTH: Link PIN length in digits (default: 6)
//   - SECURITY_PIN_TTL: Link PIN lifetime as a Go duration (default: 5m)
//   - SECURITY_LINK_SECRET: Master secret for PIN hashing (no default)
//   - SECURITY_SUSPICION_THRESHOLD: Failed-auth threshold (default: 5)
//   - SECURITY_SUSPICION_WINDOW: Threshold window as a Go duration (default: 15m)
func NewSecurityConfigFromEnv() SecurityConfig {
	return SecurityConfig{
		AdminCapacity:      GetEnvInt("SECURITY_ADMIN_CAPACITY", 2),
		PinLength:          GetEnvInt("SECURITY_PIN_LENGTH", 6),
		PinTTL:             GetEnvDuration("SECURITY_PIN_TTL", 5*time.Minute),
		LinkSecret:         GetEnv("SECURITY_LINK_SECRET"),
		SuspicionThreshold: GetEnvInt("SECURITY_SUSPICION_THRESHOLD", 5),
		SuspicionWindow:    GetEnvDuration("SECURITY_SUSPICION_WINDOW", 15*time.Minute),
	}
}

// Validate checks that the configured values leave the PIN protocol safe.
// The PIN space is checked against a worst-case online guessing budget of
// maxGuessRate attempts per second over the full TTL.
func (c SecurityConfig) Validate(maxGuessRate float64) error {
	if c.AdminCapacity < 1 {
		return fmt.Errorf("admin capacity must be at least 1, got %d", c.AdminCapacity)
	}
	if c.PinLength < 4 {
		return fmt.Errorf("pin length must be at least 4 digits, got %d", c.PinLength)
	}
	if c.PinTTL <= 0 {
		return fmt.Errorf("pin ttl must be positive, got %s", c.PinTTL)
	}
	if c.SuspicionThreshold < 1 {
		return fmt.Errorf("suspicion threshold must be at least 1, got %d", c.SuspicionThreshold)
	}

	// A guesser must not be able to cover a meaningful fraction of the PIN
	// space within one TTL. 1% coverage is the refusal line.
	space := math.Pow(10, float64(c.PinLength))
	guesses := maxGuessRate * c.PinTTL.Seconds()
	if guesses/space > 0.01 {
		return fmt.Errorf("pin space too small for ttl: %0.f guesses possible against a space of %0.f", guesses, space)
	}
	return nil
}
