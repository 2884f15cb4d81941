package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryPresenceRepo хранит время последнего появления игроков в памяти.
// Используется, когда Redis не настроен.
type MemoryPresenceRepo struct {
	mu   sync.RWMutex
	seen map[string]time.Time
}

// NewMemoryPresenceRepo создаёт пустой репозиторий
func NewMemoryPresenceRepo() *MemoryPresenceRepo {
	return &MemoryPresenceRepo{seen: make(map[string]time.Time)}
}

// RecordPresence запоминает время появления
func (r *MemoryPresenceRepo) RecordPresence(ctx context.Context, username string, at time.Time) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	r.seen[username] = at
	r.mu.Unlock()
	return nil
}

// LastSeen возвращает время последнего появления или ErrNotFound
func (r *MemoryPresenceRepo) LastSeen(ctx context.Context, username string) (time.Time, error) {
	select {
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	at, ok := r.seen[username]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return at, nil
}

// Count число известных игроков
func (r *MemoryPresenceRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.seen)
}
