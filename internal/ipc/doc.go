// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships
// the matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. The
// server wraps the daemon; the client dials with a short timeout so CLI
// commands fail fast when the daemon is offline. Keep new RPC endpoints here
// so the wire protocol stays in one place.
package ipc
