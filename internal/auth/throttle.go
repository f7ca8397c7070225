package auth

import (
	"sync"
	"time"
)

// attemptRecord tracks consecutive failed logins for one email.
type attemptRecord struct {
	attempts int
	last     time.Time
}

// LoginThrottle counts consecutive failed login attempts per email and locks
// an email out once the threshold is reached, until the cooldown since the
// last failure has elapsed. Process-local and safe for concurrent use.
type LoginThrottle struct {
	mu        sync.Mutex
	records   map[string]*attemptRecord
	threshold int
	cooldown  time.Duration
	nowFunc   func() time.Time
}

// NewLoginThrottle creates a throttle with the given threshold and cooldown.
func NewLoginThrottle(threshold int, cooldown time.Duration) *LoginThrottle {
	return &LoginThrottle{
		records:   make(map[string]*attemptRecord),
		threshold: threshold,
		cooldown:  cooldown,
		nowFunc:   time.Now,
	}
}

// Blocked reports whether the email is currently locked out. A lockout ends
// once the cooldown since the last recorded failure has passed, but the
// failure counter stays intact until a successful login calls Reset. Once an
// email is over the threshold, a single failure after the cooldown stamps a
// fresh lockout rather than granting a new budget of attempts.
func (t *LoginThrottle) Blocked(email string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.records[email]
	if !exists || rec.attempts < t.threshold {
		return false
	}
	return t.nowFunc().Sub(rec.last) < t.cooldown
}

// RecordFailure increments the failure counter for the email and stamps the
// failure time.
func (t *LoginThrottle) RecordFailure(email string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.records[email]
	if !exists {
		t.records[email] = &attemptRecord{attempts: 1, last: t.nowFunc()}
		return
	}
	rec.attempts++
	rec.last = t.nowFunc()
}

// Reset clears the failure counter for the email after a successful login.
func (t *LoginThrottle) Reset(email string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, email)
}

// Attempts returns the current failure count for the email.
func (t *LoginThrottle) Attempts(email string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, exists := t.records[email]; exists {
		return rec.attempts
	}
	return 0
}
