// Package csrf implements the double-submit cookie defense that gates
// state-changing requests: token issuance, the issued-token registry with
// TTL-based eviction, and request validation.
//
// The flow is the classic synchronizer pattern. The issuer hands the client
// an unguessable value through a script-readable cookie; the client must echo
// the same value back in a request header on every mutating request. Equality
// of the two channels proves the request originated from a context that can
// read this client's cookies. The registry additionally bounds token lifetime,
// since a cookie alone gives the server no way to force early expiry.
//
// Tokens carry no session identity and no user binding. Any holder of a live
// token validates; that is inherent to the double-submit pattern.
package csrf

import (
	"net/http"
	"time"
)

const (
	// DefaultTTL is the maximum accepted token age.
	DefaultTTL = 24 * time.Hour

	// DefaultCookieName is the cookie carrying the token to the client.
	DefaultCookieName = "XSRF-TOKEN"

	// DefaultHeaderName is the header the client echoes the token in.
	DefaultHeaderName = "X-CSRF-Token"

	// tokenByteLength is the entropy of a token before hex encoding.
	tokenByteLength = 32
)

// Reason identifies why a validation rejected a request.
type Reason string

const (
	// ReasonTokenMissing indicates one or both token values were absent.
	ReasonTokenMissing Reason = "token_missing"
	// ReasonTokenMismatch indicates the cookie and header values differ.
	ReasonTokenMismatch Reason = "token_mismatch"
	// ReasonTokenExpired covers tokens older than the TTL and tokens the
	// registry has never seen. A value this process did not issue is
	// indistinguishable from one that expired and was swept, so both fail
	// closed the same way.
	ReasonTokenExpired Reason = "token_expired"
)

// String returns the wire representation
func (r Reason) String() string {
	return string(r)
}

// Message returns the client-facing error text for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonTokenMissing:
		return "CSRF token missing"
	case ReasonTokenMismatch:
		return "Invalid CSRF token"
	case ReasonTokenExpired:
		return "CSRF token expired"
	default:
		return "CSRF validation failed"
	}
}

// Decision is the outcome of validating a single request.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// allow is the accepting decision.
func allow() Decision {
	return Decision{Allowed: true}
}

// reject builds a rejecting decision with the given reason.
func reject(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Options configures issuance and validation. Constructors fill unset fields
// from DefaultOptions, so a partially populated value is fine.
type Options struct {
	// TTL is the maximum accepted token age.
	TTL time.Duration
	// CookieName names the cookie the issuer sets.
	CookieName string
	// HeaderName names the header the validator reads.
	HeaderName string
	// SameSite is the cross-site policy on the issued cookie. Lax is the
	// default; Strict is recommended behind HTTPS.
	SameSite http.SameSite
	// Secure marks the issued cookie HTTPS-only. Must be set in production.
	Secure bool
}

// DefaultOptions returns the standard configuration: 24h TTL, XSRF-TOKEN /
// X-CSRF-Token transport, lax same-site policy, insecure cookie off.
func DefaultOptions() Options {
	return Options{
		TTL:        DefaultTTL,
		CookieName: DefaultCookieName,
		HeaderName: DefaultHeaderName,
		SameSite:   http.SameSiteLaxMode,
		Secure:     false,
	}
}

// normalize fills unset fields with defaults so a partially populated Options
// is always total.
func (o Options) normalize() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.CookieName == "" {
		o.CookieName = DefaultCookieName
	}
	if o.HeaderName == "" {
		o.HeaderName = DefaultHeaderName
	}
	if o.SameSite == http.SameSiteDefaultMode || o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// IsSafeMethod reports whether the method is exempt from validation.
// Safe methods are the side-effect-free set: retrieval, existence check,
// options discovery.
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
