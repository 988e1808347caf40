package relay

import (
	"context"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultTTL is how long an indirection entry stays resolvable.
	DefaultTTL = time.Hour
	// DefaultCapacity bounds the number of resident indirection entries.
	DefaultCapacity = 50000
)

// Store is the indirection store: it maps short-lived tokens to origin URLs.
// Implementations must be safe for concurrent use and apply the same TTL
// and lookup semantics.
type Store interface {
	// Put records e under a fresh token. The store assigns e.ExpiresAt.
	Put(ctx context.Context, e Entry) (Token, error)

	// Get returns the live entry for t. Unknown and expired tokens yield
	// ErrNotFound; backend failures yield ErrStoreUnavailable.
	Get(ctx context.Context, t Token) (Entry, error)

	// Len reports the number of resident entries. Used for metrics.
	Len() int
}

// newToken returns a random (version 4) UUID token.
func newToken() Token {
	return Token(uuid.NewString())
}

func tokenNotFound() error {
	return newError(KindNotFound, "unknown or expired token", nil)
}

// MemoryStore is an in-process Store bounded by entry count. When full, the
// least-recently-used entry is evicted regardless of its expiry. Expired
// entries are dropped when looked up, and Put discards an expired entry at
// the cold end of the list, so the store runs no background goroutine.
type MemoryStore struct {
	lru *lru.Cache[Token, Entry]
	ttl time.Duration
}

// NewMemoryStore returns a store holding at most capacity entries for ttl each.
// Non-positive arguments fall back to DefaultCapacity and DefaultTTL.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[Token, Entry](capacity)
	return &MemoryStore{lru: cache, ttl: ttl}
}

// Put implements Store.Put.
func (s *MemoryStore) Put(_ context.Context, e Entry) (Token, error) {
	now := time.Now()
	if tok, old, ok := s.lru.GetOldest(); ok && old.expired(now) {
		s.lru.Remove(tok)
	}

	e.ExpiresAt = now.Add(s.ttl)
	tok := newToken()
	s.lru.Add(tok, e)
	return tok, nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, t Token) (Entry, error) {
	e, ok := s.lru.Get(t)
	if !ok {
		return Entry{}, tokenNotFound()
	}
	if e.expired(time.Now()) {
		s.lru.Remove(t)
		return Entry{}, tokenNotFound()
	}
	return e, nil
}

// Len implements Store.Len. Expired entries not yet dropped are counted.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}
