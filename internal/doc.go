// Package internal contains helpers that are intentionally private to goSession:
// session id generation, id fingerprints for logs and audit, and key generation.
//
// # Sub-packages
//
//   - configload: file, dotenv and environment loading into goSession.Config
//   - logging: zerolog logger construction
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal
