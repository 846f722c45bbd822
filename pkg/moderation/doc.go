// Package moderation consumes content safety verdicts and carries out the
// admin-gated device sanctions.
//
// Verdicts arrive from an out-of-process classification pipeline; this
// package records them on the audit trail, feeds policy violations into the
// suspicion score, and lets admins revoke or reinstate devices. Content
// itself is never stored here.
package moderation
