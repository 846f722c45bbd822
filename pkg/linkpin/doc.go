// Package linkpin implements the cross-device link protocol: a two-phase
// handshake that binds a second device to an existing profile without
// passwords.
//
// Issue generates a short random PIN, stores only its keyed hash, and
// returns the plaintext to the caller exactly once. Redeem compares the
// submitted PIN against stored hashes in constant time and claims the
// matching pin atomically, so exactly one of two racing redeemers wins.
//
// Every failure mode - wrong PIN, expired, already redeemed, lost race -
// surfaces as the same generic error. The audit log keeps the precise
// reason; external callers get no PIN-existence oracle.
package linkpin
