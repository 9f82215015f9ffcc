// Package clm implements the connection-ID rotation lifecycle manager.
//
// High-level flow:
//   - Each connection owns a Manager. A per-connection ticker task calls
//     Manager.MaybeRotate at a sub-second period; the manager applies the
//     rotation Policy (interval + jitter + anti-churn gap) and, when a
//     rotation is due, asks the Resolver to attempt it.
//   - The Resolver works against the narrow Endpoint capability surface.
//     QuicEndpoint adapts a quic-go connection to that surface by probing
//     its exported method set, since the identifier-management API of the
//     transport is not a stable public contract.
//   - Every attempt, timer-driven or forced, appends exactly one record to
//     the EventLog, an append-only JSONL file meant for offline analysis.
//   - On the server, the Registry tracks live connections so an operator
//     command can force a rotation attempt on all of them at once.
//
// Rotation is strictly best-effort: no attempt outcome is ever fatal to the
// connection. The only error that escapes this package is a failure to
// append to the event log, which the owning task must surface.
package clm
