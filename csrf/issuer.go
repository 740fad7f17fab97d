package csrf

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"plotvault/metrics"
)

// Issuer creates tokens and records them in the registry. Every call yields a
// fresh, independently valid token; older tokens for the same client stay
// valid until they age out, so multiple browser tabs can each hold one.
type Issuer struct {
	registry Registry
	opts     Options
	logger   *zap.SugaredLogger

	// now is the clock, swappable in tests.
	now func() time.Time
}

// NewIssuer creates an issuer over the given registry.
func NewIssuer(registry Registry, opts Options, logger *zap.SugaredLogger) *Issuer {
	return &Issuer{
		registry: registry,
		opts:     opts.normalize(),
		logger:   logger,
		now:      time.Now,
	}
}

// generateToken draws 32 bytes from the system CSPRNG and hex-encodes them.
// Predictability of this value is a total break of the defense, so nothing
// seedable is ever acceptable here.
func generateToken() (string, error) {
	bytes := make([]byte, tokenByteLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// Issue generates a token, records it, and triggers an eviction sweep so
// repeated issuance without matching validation cannot grow the registry
// without bound. The only error path is the randomness source failing.
func (i *Issuer) Issue(ctx context.Context) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate CSRF token: %w", err)
	}

	now := i.now()
	if err := i.registry.Insert(ctx, token, now); err != nil {
		return "", fmt.Errorf("failed to register CSRF token: %w", err)
	}
	metrics.RecordCSRFIssued()

	// Sweep failures must never fail issuance; eviction is maintenance.
	swept, err := i.registry.Sweep(ctx, now, i.opts.TTL)
	if err != nil {
		i.logger.Warnw("CSRF registry sweep failed during issuance", "error", err)
	} else if swept > 0 {
		metrics.RecordCSRFSwept(swept)
		i.logger.Debugw("Swept expired CSRF tokens", "count", swept)
	}

	if size, err := i.registry.Len(ctx); err == nil {
		metrics.UpdateCSRFRegistrySize(size)
	}

	return token, nil
}

// Cookie builds the transport instruction for a freshly issued token. The
// cookie is deliberately not HTTP-only: client-side script has to read it and
// echo it into the request header, that is the whole point of the pattern.
func (i *Issuer) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     i.opts.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(i.opts.TTL / time.Second),
		HttpOnly: false,
		Secure:   i.opts.Secure,
		SameSite: i.opts.SameSite,
	}
}

// Options returns the effective configuration after normalization.
func (i *Issuer) Options() Options {
	return i.opts
}
