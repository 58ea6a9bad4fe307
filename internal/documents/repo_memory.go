package documents

import (
	"context"
	"sort"
	"sync"
)

type recordKey struct {
	userID       string
	documentType string
}

// MemoryRepo keeps records in a mutex-guarded map and hands out copies.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[recordKey]Record
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[recordKey]Record)}
}

func (r *MemoryRepo) Get(ctx context.Context, userID, documentType string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[recordKey{userID, documentType}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.clone(), nil
}

func (r *MemoryRepo) Create(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	key := recordKey{rec.UserID, rec.DocumentType}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[key]; exists {
		return Record{}, ErrStale
	}
	rec.Version = 1
	r.data[key] = rec.clone()
	return rec.clone(), nil
}

func (r *MemoryRepo) CompareAndSet(ctx context.Context, rec Record, expected int64) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	key := recordKey{rec.UserID, rec.DocumentType}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.data[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	if current.Version != expected {
		return Record{}, ErrStale
	}
	rec.Version = expected + 1
	rec.CreatedAt = current.CreatedAt
	r.data[key] = rec.clone()
	return rec.clone(), nil
}

// ListByUser returns the user's records ordered by document type.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Record, 0)
	for key, rec := range r.data {
		if key.userID == userID {
			out = append(out, rec.clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].DocumentType < out[j].DocumentType
	})
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
