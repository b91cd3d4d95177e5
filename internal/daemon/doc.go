// Package daemon coordinates the long-running backer process.
//
// It wires configuration, the history store, the scheduler, and notifications
// into a single lifecycle with flock-based locking to prevent a second daemon
// from sharing the same state directory. The daemon answers status queries,
// forwards manual backup and index triggers to the scheduler, and serves the
// optional HTTP API with Prometheus metrics.
//
// Keep orchestration here: snapshot and upload mechanics belong to the backup
// engine, and cadence decisions belong to the scheduler.
package daemon
