// Package identity provides decentralized identifiers and key helpers for the
// federation trust graph.
//
// Stable (SemVer-protected):
//   - DID formatting/parsing and the pure signing/verification primitives.
//
// Experimental:
//   - Filesystem-backed key storage and convenience helpers (KeyStore and
//     related functions). These are local-first utilities and are not part of
//     the long-term protocol contract.
package identity
