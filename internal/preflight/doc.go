// Package preflight provides readiness checks for the directories, binaries,
// and remote stores backer depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failure before the
//     scheduler begins sweeping filesystems.
//   - The CLI "backer status" command renders the same results when the
//     daemon is offline, so a broken remote surfaces before the first
//     scheduled backup gets a chance to fail.
//
// VerifyFormatVersion is the one hard gate: a config pinned to a different
// remote format aborts daemon start instead of producing a failed Result.
package preflight
