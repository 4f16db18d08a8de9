// Package memory implements store.Backend in process memory. It is intended
// for tests and single-instance development; contents vanish with the process.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/haukened/vanish/internal/domain"
	"github.com/haukened/vanish/internal/store"
)

var _ store.Backend = (*Backend)(nil)

type entry struct {
	mu   sync.Mutex
	rec  domain.SecretRecord
	gone bool // set under mu once the entry has left the map
}

// Backend is a map of records guarded by a RWMutex. Each entry carries its own
// mutex so a consume on one id never blocks another. Lock order is entry
// before map.
type Backend struct {
	mu      sync.RWMutex
	entries map[domain.SecretID]*entry
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{entries: make(map[domain.SecretID]*entry)}
}

func (b *Backend) Insert(ctx context.Context, rec domain.SecretRecord) error {
	if err := ctx.Err(); err != nil {
		return domain.Storage("memory.insert", err)
	}
	rec.Ciphertext = clone(rec.Ciphertext)
	rec.Nonce = clone(rec.Nonce)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[rec.ID]; ok {
		return domain.Storage("memory.insert", domain.ErrIDCollision)
	}
	b.entries[rec.ID] = &entry{rec: rec}
	return nil
}

func (b *Backend) Consume(ctx context.Context, id domain.SecretID, fn store.ConsumeFunc) error {
	if err := ctx.Err(); err != nil {
		return domain.Storage("memory.consume", err)
	}
	b.mu.RLock()
	e, ok := b.entries[id]
	b.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return domain.ErrNotFound
	}
	rec := e.rec
	rec.Ciphertext = clone(rec.Ciphertext)
	rec.Nonce = clone(rec.Nonce)
	m, err := fn(rec)
	if err != nil {
		return err
	}
	switch m {
	case store.MutationIncrement:
		e.rec.ViewCount++
	case store.MutationDelete:
		b.remove(id, e)
	default:
		return domain.Storage("memory.consume", errors.New("unknown mutation "+m.String()))
	}
	return nil
}

func (b *Backend) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.Storage("memory.delete_expired", err)
	}
	b.mu.RLock()
	var candidates []domain.SecretID
	for id, e := range b.entries {
		// ExpiresAt is immutable after insert, so it is safe to read without e.mu.
		if e.rec.ExpiresAt.Before(before) {
			candidates = append(candidates, id)
		}
	}
	b.mu.RUnlock()

	n := 0
	for _, id := range candidates {
		if limit > 0 && n >= limit {
			break
		}
		b.mu.RLock()
		e, ok := b.entries[id]
		b.mu.RUnlock()
		if !ok {
			continue
		}
		e.mu.Lock()
		if !e.gone {
			b.remove(id, e)
			n++
		}
		e.mu.Unlock()
	}
	return n, nil
}

func (b *Backend) Ping(ctx context.Context) error {
	return domain.Storage("memory.ping", ctx.Err())
}

// Len reports the number of stored records.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// remove drops e from the map. The caller holds e.mu.
func (b *Backend) remove(id domain.SecretID, e *entry) {
	b.mu.Lock()
	delete(b.entries, id)
	b.mu.Unlock()
	e.gone = true
}

func clone(p []byte) []byte {
	if p == nil {
		return nil
	}
	return append([]byte(nil), p...)
}
