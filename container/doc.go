// Package container defines the storage contract the session lifecycle coordinator
// talks to, independent of which backend is active.
//
// # Two lifetimes
//
// A [Provider] lives for the whole process and owns connection pools or clients. For
// each request the coordinator asks it for a fresh [Container], initializes it with the
// request's captured time, and closes it at the end of the request. Per-request
// containers hold no state that outlives the request.
//
// # Expiry
//
// Backends without native expiry compare the stored last-access time against
// InitParams.Now minus their configured lifetime inside Get. Backends with native TTLs
// rely on them and treat GC as a no-op.
//
// # What this package must NOT do
//
//   - Encrypt or decrypt payloads; the coordinator owns the codec.
//   - Retry backend operations. Errors are returned as-is and treated as fatal upstream.
package container
