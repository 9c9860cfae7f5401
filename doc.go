// Package goSession coordinates the lifecycle of HTTP sessions over a pluggable storage
// backend, with payloads encrypted at rest and redundant writes avoided.
//
// The core is [Handler], which implements the session handler callback protocol
// (open, validateId, createSessionId, read, write, updateTimestamp, gc, destroy, close)
// for exactly one request. [Manager] and [Session] drive a Handler in protocol order the
// way a host runtime's session subsystem would: strict id validation, lazy writes,
// read-only sessions, regeneration and probabilistic gc.
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Builder], [Config], [Manager], [Session],
// [Handler] and value types (MetricsSnapshot, AuditEvent). Storage backends live under
// container/ and never see plaintext; the codec lives under codec/; payload encoding
// lives under payload/.
//
// # What this package must NOT do
//
//   - Retry backend operations. A backend error is fatal for the request.
//   - Emit more than one Set-Cookie header per cookie name for one response.
//   - Share a Handler between requests running concurrently.
//   - Build a backend from a type name computed at runtime; the registry is static.
package goSession
