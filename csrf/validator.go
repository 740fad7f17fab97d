package csrf

import (
	"context"
	"crypto/subtle"
	"time"

	"go.uber.org/zap"

	"plotvault/metrics"
)

// Validator decides whether a request proceeds. It is strictly read-only with
// respect to the registry: discovering an expired entry during validation
// rejects the request but leaves removal to the sweep, because expiry is a
// function of age, not of whether the entry has been purged yet.
type Validator struct {
	registry Registry
	opts     Options
	logger   *zap.SugaredLogger
}

// NewValidator creates a validator over the given registry. The registry must
// be the same instance the issuer writes to.
func NewValidator(registry Registry, opts Options, logger *zap.SugaredLogger) *Validator {
	return &Validator{
		registry: registry,
		opts:     opts.normalize(),
		logger:   logger,
	}
}

// Validate runs the decision procedure in order, short-circuiting on the
// first failure:
//
//  1. Safe-method bypass: GET, HEAD and OPTIONS pass unconditionally.
//  2. Presence: both the cookie-carried and header-carried values must be
//     non-empty.
//  3. Equality: the two values must match, compared in constant time.
//  4. Existence and freshness: the value must be in the registry and younger
//     than the TTL. An unknown value, and a registry that cannot answer, both
//     count as expired. Fail closed, never open.
func (v *Validator) Validate(ctx context.Context, method, cookieToken, headerToken string, now time.Time) Decision {
	if IsSafeMethod(method) {
		return allow()
	}

	if cookieToken == "" || headerToken == "" {
		return v.record(reject(ReasonTokenMissing))
	}

	if !tokensEqual(cookieToken, headerToken) {
		return v.record(reject(ReasonTokenMismatch))
	}

	issuedAt, found, err := v.registry.Lookup(ctx, cookieToken)
	if err != nil {
		v.logger.Errorw("CSRF registry lookup failed, rejecting as expired", "error", err)
		return v.record(reject(ReasonTokenExpired))
	}
	if !found {
		return v.record(reject(ReasonTokenExpired))
	}
	if now.Sub(issuedAt) > v.opts.TTL {
		return v.record(reject(ReasonTokenExpired))
	}

	return v.record(allow())
}

// record feeds the decision into the validation metrics.
func (v *Validator) record(d Decision) Decision {
	if d.Allowed {
		metrics.RecordCSRFValidation("allowed")
	} else {
		metrics.RecordCSRFValidation(d.Reason.String())
	}
	return d
}

// tokensEqual compares two token strings in constant time.
func tokensEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Options returns the effective configuration after normalization.
func (v *Validator) Options() Options {
	return v.opts
}
