package auth

import (
	"sync"
	"time"
)

// RevocationLedger is an in-process set of revoked session tokens. Membership
// makes a token invalid immediately, regardless of its signature or expiry.
// Entries carry the token's natural expiry so the ledger can drop them once
// the token would have expired anyway.
type RevocationLedger struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	nowFunc func() time.Time
}

// NewRevocationLedger creates an empty ledger.
func NewRevocationLedger() *RevocationLedger {
	return &RevocationLedger{
		revoked: make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

// Revoke adds the token to the ledger with its natural expiry. Revoking an
// already-revoked token is a no-op.
func (l *RevocationLedger) Revoke(token string, expiresAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.revoked[token]; exists {
		return
	}
	l.revoked[token] = expiresAt
	l.cleanupLocked()
}

// IsRevoked reports whether the token is in the ledger. Entries past their
// natural expiry no longer count; the token is rejected as expired by
// signature validation instead.
func (l *RevocationLedger) IsRevoked(token string) bool {
	l.mu.RLock()
	expiresAt, exists := l.revoked[token]
	l.mu.RUnlock()

	if !exists {
		return false
	}
	if l.nowFunc().After(expiresAt) {
		l.mu.Lock()
		delete(l.revoked, token)
		l.mu.Unlock()
		return false
	}
	return true
}

// Len returns the number of ledger entries, expired ones included.
func (l *RevocationLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.revoked)
}

// cleanupLocked drops entries whose tokens have naturally expired. Caller
// must hold the write lock.
func (l *RevocationLedger) cleanupLocked() {
	now := l.nowFunc()
	for token, expiresAt := range l.revoked {
		if now.After(expiresAt) {
			delete(l.revoked, token)
		}
	}
}
