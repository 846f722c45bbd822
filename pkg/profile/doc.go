// Package profile binds devices to user profiles.
//
// Profiles are owned by the external profile store; this package only reads
// them. A profile may be reachable from multiple devices, but each device
// binds to at most one profile at a time, and the first persisted binding
// wins. The app's onboarding flow writes profiles; that is out of scope here.
package profile
