package csrf

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestIssuer(t *testing.T, registry Registry, opts Options) *Issuer {
	t.Helper()
	return NewIssuer(registry, opts, zaptest.NewLogger(t).Sugar())
}

func newTestValidator(t *testing.T, registry Registry, opts Options) *Validator {
	t.Helper()
	return NewValidator(registry, opts, zaptest.NewLogger(t).Sugar())
}

func TestIsSafeMethod(t *testing.T) {
	safeMethods := []string{"GET", "HEAD", "OPTIONS"}
	for _, method := range safeMethods {
		assert.True(t, IsSafeMethod(method), "expected %s to be safe", method)
	}

	mutatingMethods := []string{"POST", "PUT", "DELETE", "PATCH"}
	for _, method := range mutatingMethods {
		assert.False(t, IsSafeMethod(method), "expected %s to be mutating", method)
	}
}

func TestValidateSafeMethodsAlwaysPass(t *testing.T) {
	registry := NewMemoryRegistry()
	validator := newTestValidator(t, registry, DefaultOptions())
	now := time.Now()

	tokenPairs := []struct {
		cookie string
		header string
	}{
		{"", ""},
		{"sometoken", ""},
		{"", "sometoken"},
		{"sometoken", "different"},
		{"neverissued", "neverissued"},
	}

	for _, method := range []string{"GET", "HEAD", "OPTIONS"} {
		for _, pair := range tokenPairs {
			decision := validator.Validate(context.Background(), method, pair.cookie, pair.header, now)
			assert.True(t, decision.Allowed,
				"safe method %s must pass for cookie=%q header=%q", method, pair.cookie, pair.header)
		}
	}
}

func TestValidateMissingToken(t *testing.T) {
	registry := NewMemoryRegistry()
	validator := newTestValidator(t, registry, DefaultOptions())
	now := time.Now()

	tests := []struct {
		name   string
		cookie string
		header string
	}{
		{"both missing", "", ""},
		{"header missing", "sometoken", ""},
		{"cookie missing", "", "sometoken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := validator.Validate(context.Background(), "POST", tt.cookie, tt.header, now)
			require.False(t, decision.Allowed)
			assert.Equal(t, ReasonTokenMissing, decision.Reason)
		})
	}
}

func TestValidateMismatch(t *testing.T) {
	registry := NewMemoryRegistry()
	issuer := newTestIssuer(t, registry, DefaultOptions())
	validator := newTestValidator(t, registry, DefaultOptions())

	token, err := issuer.Issue(context.Background())
	require.NoError(t, err)

	decision := validator.Validate(context.Background(), "POST", token, token+"x", time.Now())
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonTokenMismatch, decision.Reason)

	// Same length but different content must also mismatch.
	altered := "0" + token[1:]
	if altered == token {
		altered = "1" + token[1:]
	}
	decision = validator.Validate(context.Background(), "PUT", token, altered, time.Now())
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonTokenMismatch, decision.Reason)
}

func TestValidateHappyPath(t *testing.T) {
	registry := NewMemoryRegistry()
	issuer := newTestIssuer(t, registry, DefaultOptions())
	validator := newTestValidator(t, registry, DefaultOptions())

	t0 := time.Now()
	issuer.now = func() time.Time { return t0 }

	token, err := issuer.Issue(context.Background())
	require.NoError(t, err)
	require.Len(t, token, 64, "32 random bytes hex-encode to 64 characters")

	for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
		decision := validator.Validate(context.Background(), method, token, token, t0.Add(1*time.Second))
		assert.True(t, decision.Allowed, "method %s should pass with a fresh matching token", method)
		assert.Empty(t, decision.Reason)
	}
}

func TestValidateExpiryBoundary(t *testing.T) {
	registry := NewMemoryRegistry()
	opts := DefaultOptions()
	require.Equal(t, 86400*time.Second, opts.TTL)
	validator := newTestValidator(t, registry, opts)

	t0 := time.Now()
	token := "a1b2c3d4e5f6a7b8a1b2c3d4e5f6a7b8a1b2c3d4e5f6a7b8a1b2c3d4e5f6a7b8"
	require.NoError(t, registry.Insert(context.Background(), token, t0))

	tests := []struct {
		name    string
		at      time.Time
		allowed bool
	}{
		{"one second before expiry", t0.Add(86399 * time.Second), true},
		{"exactly at TTL", t0.Add(86400 * time.Second), true},
		{"one second past TTL", t0.Add(86401 * time.Second), false},
		{"long past TTL", t0.Add(48 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := validator.Validate(context.Background(), "POST", token, token, tt.at)
			assert.Equal(t, tt.allowed, decision.Allowed)
			if !tt.allowed {
				assert.Equal(t, ReasonTokenExpired, decision.Reason)
			}
		})
	}
}

func TestValidateUnknownToken(t *testing.T) {
	registry := NewMemoryRegistry()
	validator := newTestValidator(t, registry, DefaultOptions())

	// Never issued by this process: indistinguishable from swept, so it must
	// fail closed as expired rather than with a distinct error.
	decision := validator.Validate(context.Background(), "POST", "deadbeef", "deadbeef", time.Now())
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonTokenExpired, decision.Reason)
}

func TestValidateAfterRegistryReset(t *testing.T) {
	registry := NewMemoryRegistry()
	issuer := newTestIssuer(t, registry, DefaultOptions())
	_ = newTestValidator(t, registry, DefaultOptions())

	token, err := issuer.Issue(context.Background())
	require.NoError(t, err)

	// Simulates a process restart: a fresh registry knows nothing about
	// previously issued cookies, so everything outstanding fails closed.
	fresh := NewMemoryRegistry()
	restarted := newTestValidator(t, fresh, DefaultOptions())

	decision := restarted.Validate(context.Background(), "POST", token, token, time.Now())
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonTokenExpired, decision.Reason)
}

func TestSweepRemovesOldKeepsNew(t *testing.T) {
	registry := NewMemoryRegistry()
	issuer := newTestIssuer(t, registry, DefaultOptions())
	ttl := issuer.Options().TTL

	t0 := time.Now()

	issuer.now = func() time.Time { return t0 }
	oldToken, err := issuer.Issue(context.Background())
	require.NoError(t, err)

	issuer.now = func() time.Time { return t0.Add(2 * ttl) }
	newToken, err := issuer.Issue(context.Background())
	require.NoError(t, err)

	swept, err := registry.Sweep(context.Background(), t0.Add(2*ttl+time.Second), ttl)
	require.NoError(t, err)
	// The second issuance already swept the first token; either way exactly
	// one of the two sweeps removed it.
	assert.LessOrEqual(t, swept, 1)

	_, found, err := registry.Lookup(context.Background(), oldToken)
	require.NoError(t, err)
	assert.False(t, found, "token older than TTL must be swept")

	_, found, err = registry.Lookup(context.Background(), newToken)
	require.NoError(t, err)
	assert.True(t, found, "fresh token must survive the sweep")
}

func TestIssuanceTriggersSweep(t *testing.T) {
	registry := NewMemoryRegistry()
	issuer := newTestIssuer(t, registry, DefaultOptions())
	ttl := issuer.Options().TTL

	t0 := time.Now()
	issuer.now = func() time.Time { return t0 }
	for i := 0; i < 5; i++ {
		_, err := issuer.Issue(context.Background())
		require.NoError(t, err)
	}

	size, err := registry.Len(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, size)

	// One issuance far in the future evicts everything stale as a side
	// effect, leaving only itself.
	issuer.now = func() time.Time { return t0.Add(2 * ttl) }
	_, err = issuer.Issue(context.Background())
	require.NoError(t, err)

	size, err = registry.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestConcurrentIssuanceUniqueness(t *testing.T) {
	registry := NewMemoryRegistry()
	issuer := newTestIssuer(t, registry, DefaultOptions())

	const numTokens = 1000

	var (
		mu     sync.Mutex
		tokens = make(map[string]bool, numTokens)
		wg     sync.WaitGroup
	)

	errCh := make(chan error, numTokens)
	for i := 0; i < numTokens; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := issuer.Issue(context.Background())
			if err != nil {
				errCh <- err
				return
			}
			mu.Lock()
			tokens[token] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
	assert.Len(t, tokens, numTokens, "all concurrently issued tokens must be pairwise distinct")

	size, err := registry.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, numTokens, size)
}

func TestCookieAttributes(t *testing.T) {
	registry := NewMemoryRegistry()

	t.Run("defaults", func(t *testing.T) {
		issuer := newTestIssuer(t, registry, DefaultOptions())
		cookie := issuer.Cookie("tokenvalue")

		assert.Equal(t, "XSRF-TOKEN", cookie.Name)
		assert.Equal(t, "tokenvalue", cookie.Value)
		assert.Equal(t, 86400, cookie.MaxAge)
		assert.False(t, cookie.HttpOnly, "script must be able to read the cookie")
		assert.False(t, cookie.Secure)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
		assert.Equal(t, "/", cookie.Path)
	})

	t.Run("hardened", func(t *testing.T) {
		opts := DefaultOptions()
		opts.SameSite = http.SameSiteStrictMode
		opts.Secure = true
		issuer := newTestIssuer(t, registry, opts)
		cookie := issuer.Cookie("tokenvalue")

		assert.True(t, cookie.Secure)
		assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
		assert.False(t, cookie.HttpOnly, "hardening must not break script access")
	})
}

func TestReasonMessages(t *testing.T) {
	assert.Equal(t, "CSRF token missing", ReasonTokenMissing.Message())
	assert.Equal(t, "Invalid CSRF token", ReasonTokenMismatch.Message())
	assert.Equal(t, "CSRF token expired", ReasonTokenExpired.Message())
	assert.Equal(t, "token_missing", ReasonTokenMissing.String())
}

func TestOptionsNormalize(t *testing.T) {
	opts := Options{}.normalize()
	assert.Equal(t, DefaultTTL, opts.TTL)
	assert.Equal(t, DefaultCookieName, opts.CookieName)
	assert.Equal(t, DefaultHeaderName, opts.HeaderName)
	assert.Equal(t, http.SameSiteLaxMode, opts.SameSite)

	custom := Options{
		TTL:        time.Hour,
		CookieName: "MY-TOKEN",
		HeaderName: "X-My-Token",
		SameSite:   http.SameSiteStrictMode,
		Secure:     true,
	}.normalize()
	assert.Equal(t, time.Hour, custom.TTL)
	assert.Equal(t, "MY-TOKEN", custom.CookieName)
	assert.Equal(t, "X-My-Token", custom.HeaderName)
	assert.Equal(t, http.SameSiteStrictMode, custom.SameSite)
	assert.True(t, custom.Secure)
}
