// Package token mints and validates Toka capability tokens (C1) and holds
// the rotating pool of signing keys that backs multi-key validation (C2).
//
// Wire format: a three-segment HS256 JWT, header {"alg":"HS256",
// "typ":"toka.cap+jwt"}, payload {sub, vault, permissions, iat, exp, jti}.
// Validation is strict and generic: any defect — bad signature, malformed
// segments, or now >= exp — returns the same AuthError, so a caller can
// never use the failure mode as an oracle.
package token
