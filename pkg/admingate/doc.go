// Package admingate gates access to moderation tooling.
//
// A small, capacity-capped table of AdminGrant rows decides who is
// privileged. Every check resolves through the device registry and profile
// binder first; a profile ID taken from request input is never consulted.
// The check-then-insert on grant is serialized so concurrent grants cannot
// jointly exceed the capacity ceiling.
//
// Promoting the first operator is a separately audited one-shot bootstrap
// path that only runs while the table is empty - never an ad hoc script
// against the store.
package admingate
