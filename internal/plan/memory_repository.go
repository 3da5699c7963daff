package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voyaai/voyaai/internal/itinerary"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	plans map[string][]byte
	meta  map[string]Summary
	now   func() time.Time
}

// NewInMemoryRepository creates a new in-memory plan repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		plans: make(map[string][]byte),
		meta:  make(map[string]Summary),
		now:   time.Now,
	}
}

// Save stores an encoded copy of doc.
func (r *InMemoryRepository) Save(_ context.Context, doc *itinerary.Document) (SaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *doc
	if cpy.ID == "" {
		cpy.ID = uuid.NewString()
	}
	if prev, ok := r.meta[cpy.ID]; ok {
		cpy.CreatedAt = prev.CreatedAt
	} else if cpy.CreatedAt.IsZero() {
		cpy.CreatedAt = r.now().UTC()
	}
	if cpy.UpdatedAt.IsZero() {
		cpy.UpdatedAt = r.now().UTC()
	}

	// Stored encoded so callers never share slices with the store.
	data, err := json.Marshal(&cpy)
	if err != nil {
		return SaveResult{}, fmt.Errorf("encode plan: %w", err)
	}
	r.plans[cpy.ID] = data
	r.meta[cpy.ID] = summarize(&cpy)

	return SaveResult{ID: cpy.ID, CreatedAt: cpy.CreatedAt}, nil
}

// Load retrieves a plan by ID.
func (r *InMemoryRepository) Load(_ context.Context, id string) (*itinerary.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, ok := r.plans[id]
	if !ok {
		return nil, ErrNotFound
	}

	var doc itinerary.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &doc, nil
}

// List returns plans ordered by last update. Cursor is the ID of the last
// item of the previous page.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]Summary, 0, len(r.meta))
	for _, s := range r.meta {
		items = append(items, s)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID > items[j].ID
	})

	if opts.Cursor != "" {
		for i, s := range items {
			if s.ID == opts.Cursor {
				items = items[i+1:]
				break
			}
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	result := &ListResult{Items: items}
	if len(items) > limit {
		result.Items = items[:limit]
		result.NextCursor = items[limit-1].ID
	}
	return result, nil
}

// Delete deletes a plan by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.plans, id)
	delete(r.meta, id)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
