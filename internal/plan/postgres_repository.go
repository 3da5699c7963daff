package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyaai/voyaai/internal/itinerary"
)

const schema = `
	CREATE TABLE IF NOT EXISTS plans (
		id          UUID PRIMARY KEY,
		title       TEXT NOT NULL DEFAULT '',
		day_count   INTEGER NOT NULL DEFAULT 0,
		document    JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_plans_updated_at ON plans (updated_at DESC, id DESC);
`

// PostgresRepository is a PostgreSQL implementation of Repository. The plan
// is stored whole as a jsonb document; listing columns are denormalized.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL plan repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// InitSchema creates the plans table if it does not exist.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init plan schema: %w", err)
	}
	return nil
}

// Save upserts the document. The stored created_at wins over the
// document's on update.
func (r *PostgresRepository) Save(ctx context.Context, doc *itinerary.Document) (SaveResult, error) {
	cpy := *doc
	if cpy.ID == "" {
		cpy.ID = uuid.NewString()
	} else if _, err := uuid.Parse(cpy.ID); err != nil {
		return SaveResult{}, fmt.Errorf("invalid plan id %q", cpy.ID)
	}
	now := time.Now().UTC()
	if cpy.CreatedAt.IsZero() {
		cpy.CreatedAt = now
	}
	if cpy.UpdatedAt.IsZero() {
		cpy.UpdatedAt = now
	}

	data, err := json.Marshal(&cpy)
	if err != nil {
		return SaveResult{}, fmt.Errorf("encode plan: %w", err)
	}

	query := `
		INSERT INTO plans (id, title, day_count, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			day_count = EXCLUDED.day_count,
			document = jsonb_set(EXCLUDED.document, '{createdAt}', to_jsonb(plans.created_at)),
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	var res SaveResult
	err = r.pool.QueryRow(ctx, query,
		cpy.ID,
		cpy.Title,
		len(cpy.Days),
		data,
		cpy.CreatedAt,
		cpy.UpdatedAt,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save plan: %w", err)
	}
	return res, nil
}

// Load retrieves a plan by ID.
func (r *PostgresRepository) Load(ctx context.Context, id string) (*itinerary.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var (
		data      []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT document, created_at, updated_at FROM plans WHERE id = $1`, id,
	).Scan(&data, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var doc itinerary.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", id, err)
	}
	doc.ID = id
	doc.CreatedAt = createdAt
	doc.UpdatedAt = updatedAt
	return &doc, nil
}

// List retrieves plans with keyset pagination on (updated_at, id).
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	// Fetch one extra to determine if there are more results
	fetchLimit := limit + 1

	query := `
		SELECT id, title, day_count, created_at, updated_at
		FROM plans
		WHERE $1::uuid IS NULL
			OR (updated_at, id) < (SELECT updated_at, id FROM plans WHERE id = $1::uuid)
		ORDER BY updated_at DESC, id DESC
		LIMIT $2
	`

	var cursor *string
	if opts.Cursor != "" {
		if _, err := uuid.Parse(opts.Cursor); err != nil {
			return nil, fmt.Errorf("invalid cursor %q", opts.Cursor)
		}
		cursor = &opts.Cursor
	}

	rows, err := r.pool.Query(ctx, query, cursor, fetchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Title, &s.DayCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &ListResult{Items: items}
	if len(items) > limit {
		result.Items = items[:limit]
		result.NextCursor = items[limit-1].ID
	}
	return result, nil
}

// Delete deletes a plan by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	return err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
