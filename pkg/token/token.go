// Package token implements capability-token minting and validation (C1)
// and the rotating signing-key pool that backs multi-key validation (C2).
//
// Tokens are HS256 JWTs with a fixed type tag so they cannot be confused
// with tokens from another subsystem. Validation is strict-expiry and
// generic on failure: a malformed token, a bad signature, and an expired
// token all come back as the same AuthError, so a caller can never use
// validation failures as an oracle for which check tripped.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// wireType is the JWT "typ" header value stamped on every Toka capability
// token, distinguishing it from any other HS256 JWT a shared secret might
// otherwise also validate.
const wireType = "toka.cap+jwt"

// AuthError is the single error kind capability validation ever returns.
// Its Reason is for logs and metrics only; callers must not branch on it.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "token: authentication failed: " + e.Reason }

func authFail(reason string) error { return &AuthError{Reason: reason} }

// Claims is the capability claim-set carried by a token.
type Claims struct {
	Subject     string   `json:"sub"`
	Vault       string   `json:"vault"`
	Permissions []string `json:"permissions"`
	IssuedAt    int64    `json:"iat"`
	Expiry      int64    `json:"exp"`
	ID          string   `json:"jti"`
}

// claimsWire adapts Claims to the jwt.Claims interface at the encode/decode
// boundary so Claims itself stays a plain, dependency-free struct. All the
// registered-claim accessors return zero values: Toka enforces its own
// strict exp check below rather than delegating to the library's.
type claimsWire struct {
	Claims
}

func (w claimsWire) GetExpirationTime() (*jwt.NumericDate, error) { return nil, nil }
func (w claimsWire) GetIssuedAt() (*jwt.NumericDate, error)       { return nil, nil }
func (w claimsWire) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (w claimsWire) GetIssuer() (string, error)                   { return "", nil }
func (w claimsWire) GetSubject() (string, error)                  { return w.Claims.Subject, nil }
func (w claimsWire) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }

// HasPermission reports whether the claim-set grants perm, either exactly
// or via the "*" wildcard.
func (c Claims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm || p == "*" {
			return true
		}
	}
	return false
}

// Mint signs claims with secret and returns the three-segment wire string.
// iat must be <= exp; Mint does not itself enforce this (callers build
// claims directly), but a Claims with iat > exp will simply never validate.
func Mint(claims Claims, secret []byte) (string, error) {
	wire := claimsWire{Claims: claims}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, wire)
	t.Header["typ"] = wireType
	signed, err := t.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("token: mint: %w", err)
	}
	return signed, nil
}

// Validate verifies tokenString's signature against secret and enforces
// strict expiry: now >= exp is a failure with zero leeway. Any other
// defect (bad MAC, malformed segments, wrong typ) produces the identical
// AuthError so no defect is distinguishable from another.
func Validate(tokenString string, secret []byte) (Claims, error) {
	return ValidateAt(tokenString, secret, time.Now())
}

// ValidateAt validates tokenString as of now, rather than time.Now(). It
// exists so tests can exercise strict-expiry boundaries deterministically
// without sleeping.
func ValidateAt(tokenString string, secret []byte, now time.Time) (Claims, error) {
	var wire claimsWire
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))

	tok, err := parser.ParseWithClaims(tokenString, &wire, func(t *jwt.Token) (interface{}, error) {
		if typ, _ := t.Header["typ"].(string); typ != wireType {
			return nil, authFail("wrong token type")
		}
		return secret, nil
	})
	if err != nil || !tok.Valid {
		return Claims{}, authFail("invalid token")
	}

	nowSec := now.Unix()
	if wire.Claims.IssuedAt > wire.Claims.Expiry || nowSec >= wire.Claims.Expiry {
		return Claims{}, authFail("invalid token")
	}

	return wire.Claims, nil
}
