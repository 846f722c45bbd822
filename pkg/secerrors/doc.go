// Package secerrors defines the shared error taxonomy for the anonid
// security control plane.
//
// Security-sensitive failures are deliberately uninformative to external
// callers: a wrong PIN, an expired PIN, and an already-redeemed PIN all
// surface as the same ErrInvalidOrExpiredPin. The audit log keeps the
// precise internal reason for operator review.
package secerrors
