// Package syncer reconciles the register's local cache with the back-office
// document store.
//
// # Overview
//
// Writes made while the back office is unreachable land in the local store's
// outbox. When connectivity returns (or on an explicit trigger), the engine
// replays each queued mutation against the remote store:
//
//	register / spool / API
//	        ↓
//	     Writer ──────────────→ remote store   (online, call succeeded)
//	        ↓ (offline or call failed)
//	  localstore + outbox
//	        ↓
//	     Engine.Run ──────────→ remote store   (replay, per-item recovery)
//
// The Refresher pulls current remote state into the local cache, both as the
// pre-sync baseline on reconnect and as an on-demand cache warm. The
// Coordinator owns the process-wide "syncing" flag and its subscriber list;
// it is constructed once and passed by reference rather than living in
// package-level state, so tests can run isolated instances.
//
// # Error handling
//
// Replay is resilient: a failure on one queued mutation leaves it in place
// for the next run and does not stop the remaining items. Failures are
// logged, never surfaced to the register; the expected cause is routine
// network unavailability.
//
// # Duplicate detection
//
// A record created offline carries a temporary id. Before replaying its
// creation, the engine fetches the remote collection and compares business
// fingerprints (see pos.Record.Fingerprint). A match means a previous sync
// attempt already created the record; the local temporary copy and the queue
// entry are dropped without writing again.
package syncer
