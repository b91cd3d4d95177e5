// Package logs reads slices of the daemon log file with bounded memory.
//
// It backs the LogTail IPC handler and the `backer logs` command. A negative
// offset means "last N lines"; a non-negative offset resumes reading where a
// previous call left off, which is how follow mode pages through the file.
// Callers pass a context so polling in follow mode stops when the CLI exits.
package logs
