package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryLease struct {
	token     string
	expiresAt time.Time
}

// MemoryStore holds the leases for in-process lockers. Workers sharing a
// store contend with each other; used in tests and local development.
type MemoryStore struct {
	mu     sync.Mutex
	leases map[string]memoryLease
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{leases: make(map[string]memoryLease)}
}

// Locker returns a Locker view of the store for one owner.
func (s *MemoryStore) Locker(owner string) *MemoryLocker {
	return &MemoryLocker{store: s, owner: owner, tokens: make(map[string]string)}
}

// MemoryLocker is a single-process Locker. Each acquisition mints a fresh
// lease token, so concurrent goroutines of one owner exclude each other the
// same way separate instances do. Expired leases are reclaimed lazily on
// the next acquire.
type MemoryLocker struct {
	store  *MemoryStore
	owner  string
	mu     sync.Mutex
	tokens map[string]string
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := l.owner + ":" + uuid.New().String()

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	now := time.Now()

	if lease, ok := l.store.leases[key]; ok && now.Before(lease.expiresAt) {
		return false, nil
	}

	l.store.leases[key] = memoryLease{token: token, expiresAt: now.Add(ttl)}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()

	return true, nil
}

func (l *MemoryLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()

	if token == "" {
		return ErrNotHeld
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	lease, ok := l.store.leases[key]
	if !ok || lease.token != token || time.Now().After(lease.expiresAt) {
		return ErrNotHeld
	}

	delete(l.store.leases, key)

	return nil
}

func (l *MemoryLocker) Renew(ctx context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	token := l.tokens[key]
	l.mu.Unlock()

	if token == "" {
		return ErrNotHeld
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	lease, ok := l.store.leases[key]
	if !ok || lease.token != token || time.Now().After(lease.expiresAt) {
		l.mu.Lock()
		delete(l.tokens, key)
		l.mu.Unlock()

		return ErrNotHeld
	}

	l.store.leases[key] = memoryLease{token: token, expiresAt: time.Now().Add(ttl)}

	return nil
}
