package tokenstorage

import (
	"sync"
	"time"
)

var (
	mu     sync.RWMutex
	tokens = make(map[string]time.Time)
)

// AddToken records an issued token until it expires or is revoked.
func AddToken(token string, expires time.Time) {
	mu.Lock()
	defer mu.Unlock()

	now := time.Now()
	for t, exp := range tokens {
		if now.After(exp) {
			delete(tokens, t)
		}
	}
	tokens[token] = expires
}

func CheckToken(token string) bool {
	mu.RLock()
	defer mu.RUnlock()

	exp, ok := tokens[token]
	return ok && time.Now().Before(exp)
}

func RevokeToken(token string) {
	mu.Lock()
	defer mu.Unlock()

	delete(tokens, token)
}
