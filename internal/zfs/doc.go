// Package zfs wraps the zfs command line tool.
//
// All dataset inspection goes through an Executor so tests can script
// command output without a pool. Query commands run with a bounded timeout;
// send and receive streams run for as long as the caller's context allows.
package zfs
