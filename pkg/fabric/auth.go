package fabric

import (
	"context"
	"sync"
)

// TokenMapAuthenticator resolves opaque tokens to user IDs through a fixed
// table. Stands in for the external auth adapter spec §4.7 step 1 defers
// to — a real deployment swaps this for whatever issues and validates
// session tokens upstream; the fabric only needs the Authenticator seam.
type TokenMapAuthenticator struct {
	mu     sync.RWMutex
	tokens map[string]string // token -> user_id
}

func NewTokenMapAuthenticator(tokens map[string]string) *TokenMapAuthenticator {
	table := make(map[string]string, len(tokens))
	for k, v := range tokens {
		table[k] = v
	}
	return &TokenMapAuthenticator{tokens: table}
}

func (a *TokenMapAuthenticator) Authenticate(ctx context.Context, token string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	userID, ok := a.tokens[token]
	return userID, ok
}

// Grant registers a token for userID, for tests and local dev issuing
// tokens out of band.
func (a *TokenMapAuthenticator) Grant(token, userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens[token] = userID
}

// Revoke removes a token, e.g. on logout.
func (a *TokenMapAuthenticator) Revoke(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tokens, token)
}
