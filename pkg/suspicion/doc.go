// Package suspicion scores devices from request outcomes.
//
// Auth failures and policy violations accumulate per device inside a fixed
// window; crossing the configured threshold marks the device suspicious and
// emits a single suspicious_device event per crossing. Suspicion is a soft
// signal (throttle, add friction); revocation is a hard stop, is only ever
// set by an explicit admin action, and is never cleared by later successes.
package suspicion
