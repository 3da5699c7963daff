// Package plan persists itinerary documents and schedules their saves.
package plan

import (
	"context"
	"errors"
	"time"

	"github.com/voyaai/voyaai/internal/itinerary"
)

// ErrNotFound is returned when a plan does not exist.
var ErrNotFound = errors.New("plan not found")

// SaveResult is the identity assigned by the store. It is merged back into
// the live plan after the first save.
type SaveResult struct {
	ID        string
	CreatedAt time.Time
}

// Summary is a listing row.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	DayCount  int       `json:"dayCount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListOptions contains options for listing plans.
type ListOptions struct {
	Limit  int
	Cursor string
}

// ListResult contains the results of listing plans, most recently updated
// first.
type ListResult struct {
	Items      []Summary
	NextCursor string
}

// Repository defines the interface for plan persistence.
type Repository interface {
	// Save creates the plan when doc.ID is empty or unknown, and replaces it
	// otherwise. CreatedAt is kept from the first save.
	Save(ctx context.Context, doc *itinerary.Document) (SaveResult, error)

	// Load returns ErrNotFound if the plan doesn't exist.
	Load(ctx context.Context, id string) (*itinerary.Document, error)

	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
}

const defaultListLimit = 50

func summarize(doc *itinerary.Document) Summary {
	return Summary{
		ID:        doc.ID,
		Title:     doc.Title,
		DayCount:  len(doc.Days),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
