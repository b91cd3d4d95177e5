// Package history persists one record per engine run in a local SQLite
// database. The daemon consults it for status summaries and the CLI renders
// it for operators; retention pruning keeps the database bounded.
package history
