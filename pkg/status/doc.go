// Package status mirrors the progress of a run into Redis so that external
// dashboards can follow it.
//
// Every run gets a UUID. Its state lives in a hash
//
//	<prefix>:run:<run-id>   state, group, groups, done, total, failures, updated_at
//
// which expires DefaultTTL after the last write, and the run id is added to
// the set <prefix>:runs.
//
// The mirror is write-only. Nothing in promptgrid reads it back, and a failing
// Redis write is logged without affecting the run. Use Nop when no Redis
// address is configured.
package status
