package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"gaswatch/internal/types"
)

// SchemaClassificationEvents creates the table backing
// ClassificationRepository. It is idempotent.
const SchemaClassificationEvents = `
CREATE TABLE IF NOT EXISTS classification_events (
	id            UUID PRIMARY KEY,
	reading_key   TEXT NOT NULL,
	label         TEXT NOT NULL,
	probabilities JSONB NOT NULL,
	fallback      BOOLEAN NOT NULL DEFAULT FALSE,
	dispatched    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS classification_events_created_at_idx
	ON classification_events (created_at DESC);`

// ClassificationRepository stores one row per monitor cycle that produced a
// classification.
type ClassificationRepository struct {
	db  DBTX
	now func() time.Time
}

// NewClassificationRepository creates a ClassificationRepository.
func NewClassificationRepository(db DBTX) *ClassificationRepository {
	return &ClassificationRepository{db: db, now: time.Now}
}

// EnsureSchema creates the table and index if they do not exist.
func (r *ClassificationRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, SchemaClassificationEvents); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create classification_events", err)
	}
	return nil
}

// Record inserts e. Missing ID and CreatedAt are filled in.
func (r *ClassificationRepository) Record(ctx context.Context, e *types.ClassificationEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	probs, err := json.Marshal(e.Probabilities)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode probabilities", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO classification_events
		 (id, reading_key, label, probabilities, fallback, dispatched, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID,
		e.ReadingKey,
		string(e.Label),
		probs,
		e.Fallback,
		e.Dispatched,
		e.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record classification", err)
	}
	return nil
}

// ListRecent returns up to limit events, newest first.
func (r *ClassificationRepository) ListRecent(ctx context.Context, limit int) ([]types.ClassificationEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, reading_key, label, probabilities, fallback, dispatched, created_at
		 FROM classification_events
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list classifications", err)
	}
	defer rows.Close()

	var out []types.ClassificationEvent
	for rows.Next() {
		var (
			e     types.ClassificationEvent
			label string
			probs []byte
		)
		if err := rows.Scan(&e.ID, &e.ReadingKey, &label, &probs, &e.Fallback, &e.Dispatched, &e.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan classification", err)
		}
		e.Label = types.Label(label)
		if len(probs) > 0 {
			if err := json.Unmarshal(probs, &e.Probabilities); err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode probabilities", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate classifications", err)
	}
	return out, nil
}
