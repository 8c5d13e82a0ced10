// Package nonce hands out single-use, time-limited confirmation tokens.
// Destructive admin operations require a token previously issued for the
// same action, which guards them against forged cross-site requests.
package nonce

import (
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const tokenLength = 32

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 10 * time.Minute

type entry struct {
	action  string
	expires time.Time
}

// Issuer issues and verifies confirmation tokens. A token is bound to the
// action it was issued for and is consumed on first verification, successful
// or not.
type Issuer struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	tokens map[string]entry
}

func NewIssuer(ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Issuer{
		ttl:    ttl,
		now:    time.Now,
		tokens: make(map[string]entry),
	}
}

// Issue creates a token bound to action.
func (i *Issuer) Issue(action string) (string, error) {
	const op = "nonce.Issuer.Issue"

	token, err := gonanoid.New(tokenLength)
	if err != nil {
		return "", fmt.Errorf("%s: failed to generate token: %w", op, err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.prune()
	i.tokens[token] = entry{
		action:  action,
		expires: i.now().Add(i.ttl),
	}

	return token, nil
}

// Verify reports whether token was issued for action and hasn't expired.
// The token is consumed either way.
func (i *Issuer) Verify(action, token string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, ok := i.tokens[token]
	if !ok {
		return false
	}
	delete(i.tokens, token)

	return e.action == action && i.now().Before(e.expires)
}

// prune drops expired tokens. Caller must hold mu.
func (i *Issuer) prune() {
	now := i.now()
	for token, e := range i.tokens {
		if now.After(e.expires) {
			delete(i.tokens, token)
		}
	}
}
