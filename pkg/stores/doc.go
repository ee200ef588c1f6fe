// Package stores keeps the run ledger: a SQLite database recording every
// seed run, the per-site result of each run, the outcome of every entity
// the engine tried to ensure, and every change notification the notifier
// attempted.
//
// The ledger is optional. The engine and notifier only see it through
// their Recorder interfaces, and a failing ledger never fails a run.
//
// Schema changes are embedded SQL migrations applied with golang-migrate.
// The database runs in WAL mode with foreign keys enabled, so deleting a
// run removes its sites and outcomes as well.
package stores
