// Package config provides configuration utilities for the anonid control plane.
//
// It centralizes environment variable loading with type conversion and holds
// the security policy knobs (admin capacity, PIN length and TTL, suspicion
// threshold) that the security guarantees depend on. The observed production values
// (capacity 2, 6-digit PINs, short TTL) are defaults here, not constants:
// operators are expected to re-derive them against current brute-force and
// throughput assumptions.
package config
