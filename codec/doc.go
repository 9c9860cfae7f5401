// Package codec encrypts and decrypts opaque session payloads before they reach a
// storage container.
//
// # Modes
//
//   - [ModeAESCBC]: AES in CBC mode with a fixed, deployment-wide IV and PKCS#7 padding.
//     Output is standard base64 so text columns and cookies can carry it. Identical
//     plaintext prefixes produce identical ciphertext prefixes across records; the mode is
//     kept for compatibility with stores written by the fixed-IV scheme.
//   - [ModeXChaCha20Poly1305]: authenticated encryption with a fresh random nonce per
//     record, prepended to the ciphertext.
//   - [Plaintext]: identity transform. Only reachable through an explicit opt-in.
//
// # What this package must NOT do
//
//   - Derive keys or IVs per record in CBC mode.
//   - Interpret payload contents.
package codec
