// Package middleware exposes net/http adapters that start a goSession.Session for each
// request and commit it before the response is written.
//
// # Modes
//
//   - [Session] with [ModeReadWrite]: loads or creates the session and commits it when
//     the handler first writes or returns.
//   - [ReadOnly]: loads an existing session and releases it immediately; handlers can
//     read values but not change them.
//
// The session is available to handlers through [FromContext].
//
// # What this package must NOT do
//
//   - Talk to a storage backend (Manager and its Handler own all I/O).
//   - Emit identity cookies itself (the Handler's header accumulator does).
//   - Retry after a fatal session error; the request is answered with 500.
package middleware
