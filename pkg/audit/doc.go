// Package audit provides the append-only security event log for anonid.
//
// The log is the only time-ordered source of truth for incident review. It
// feeds two consumers: the suspicion scorer (which reacts to recorded
// outcomes) and the operator dashboard (read-only, via Summarize and Recent).
//
// Append is fire-and-forget: a failure to persist an event is swallowed,
// logged, and alarmed through the notify package, never propagated to the
// operation that triggered it.
package audit
