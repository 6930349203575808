package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRecorder struct {
	pool *pgxpool.Pool
}

func NewPgRecorder(pool *pgxpool.Pool) *PgRecorder {
	return &PgRecorder{pool: pool}
}

func (r *PgRecorder) Append(ctx context.Context, e Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO timeline_entries (entity_type, entity_id, status, note, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`, e.EntityType, e.EntityID, e.Status, e.Note, e.Actor, nullableTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert timeline entry: %w", err)
	}
	return nil
}

func (r *PgRecorder) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, status, note, actor, created_at
		FROM timeline_entries
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id
	`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Status, &e.Note, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
