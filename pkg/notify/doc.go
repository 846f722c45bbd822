// Package notify delivers operator alerts for the anonid control plane.
//
// Alerts are the out-of-band channel for conditions that must never surface
// as user-facing errors: audit log write failures, device revocations, and
// suspicious-device transitions. Delivery is best effort.
package notify
