package csrf

import (
	"context"
	"sync"
	"time"
)

// Registry is the authoritative mapping from token value to issuance time.
// It is owned exclusively by the issuance/validation pair; nothing else
// touches it. Implementations must allow concurrent use from many requests.
//
// The context and error surface exist for pluggable external backends; the
// in-memory implementation never blocks on I/O and never returns an error.
type Registry interface {
	// Insert records a token with its issuance time. Inserting a colliding
	// value replaces the timestamp, keeping the operation total.
	Insert(ctx context.Context, value string, issuedAt time.Time) error

	// Lookup returns the issuance time for a token and whether it is known.
	Lookup(ctx context.Context, value string) (time.Time, bool, error)

	// Delete removes a token. Deleting an unknown value is a no-op.
	Delete(ctx context.Context, value string) error

	// Sweep removes every entry older than ttl relative to now and returns
	// the number removed. Pure maintenance: it never rejects a request, and
	// skipping it only costs memory, never correctness, because validation
	// checks age independently.
	Sweep(ctx context.Context, now time.Time, ttl time.Duration) (int, error)

	// Len returns the number of live entries.
	Len(ctx context.Context) (int, error)
}

// MemoryRegistry is the default single-process Registry: one mutex around a
// plain map. Entries survive until swept or deleted; a process restart empties
// the registry, which uniformly invalidates every outstanding cookie. That is
// the intended fail-closed behavior, not a defect.
type MemoryRegistry struct {
	mu     sync.RWMutex
	tokens map[string]time.Time
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		tokens: make(map[string]time.Time),
	}
}

// Insert records the token. Never returns an error.
func (r *MemoryRegistry) Insert(_ context.Context, value string, issuedAt time.Time) error {
	r.mu.Lock()
	r.tokens[value] = issuedAt
	r.mu.Unlock()
	return nil
}

// Lookup reads the issuance time under the read lock.
func (r *MemoryRegistry) Lookup(_ context.Context, value string) (time.Time, bool, error) {
	r.mu.RLock()
	issuedAt, ok := r.tokens[value]
	r.mu.RUnlock()
	return issuedAt, ok, nil
}

// Delete removes the token if present.
func (r *MemoryRegistry) Delete(_ context.Context, value string) error {
	r.mu.Lock()
	delete(r.tokens, value)
	r.mu.Unlock()
	return nil
}

// Sweep removes expired entries in two passes: collect candidates under the
// read lock, then delete under the write lock, re-checking each entry so a
// concurrent re-issuance of the same value is never clobbered.
func (r *MemoryRegistry) Sweep(_ context.Context, now time.Time, ttl time.Duration) (int, error) {
	var expired []string

	r.mu.RLock()
	for value, issuedAt := range r.tokens {
		if now.Sub(issuedAt) > ttl {
			expired = append(expired, value)
		}
	}
	r.mu.RUnlock()

	if len(expired) == 0 {
		return 0, nil
	}

	removed := 0
	r.mu.Lock()
	for _, value := range expired {
		issuedAt, ok := r.tokens[value]
		if !ok || now.Sub(issuedAt) <= ttl {
			continue
		}
		delete(r.tokens, value)
		removed++
	}
	r.mu.Unlock()

	return removed, nil
}

// Len returns the current entry count.
func (r *MemoryRegistry) Len(_ context.Context) (int, error) {
	r.mu.RLock()
	n := len(r.tokens)
	r.mu.RUnlock()
	return n, nil
}
