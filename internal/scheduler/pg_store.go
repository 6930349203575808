package scheduler

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PgStore)(nil)

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Upsert(ctx context.Context, j Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (job_id, fire_at, purpose, entity_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (job_id) DO UPDATE
		SET fire_at = EXCLUDED.fire_at,
		    purpose = EXCLUDED.purpose,
		    entity_id = EXCLUDED.entity_id,
		    updated_at = now()
	`, j.ID, j.FireAt, j.Purpose, j.EntityID)
	return err
}

func (s *PgStore) InsertIfAbsent(ctx context.Context, j Job) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (job_id, fire_at, purpose, entity_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (job_id) DO NOTHING
	`, j.ID, j.FireAt, j.Purpose, j.EntityID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) Delete(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM scheduled_jobs WHERE job_id = $1
	`, jobID)
	return err
}

func (s *PgStore) DeleteIfFireAt(ctx context.Context, jobID string, fireAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM scheduled_jobs WHERE job_id = $1 AND fire_at = $2
	`, jobID, fireAt)
	return err
}

func (s *PgStore) List(ctx context.Context) ([]Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, fire_at, purpose, entity_id
		FROM scheduled_jobs
		ORDER BY fire_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (s *PgStore) ListDue(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, fire_at, purpose, entity_id
		FROM scheduled_jobs
		WHERE fire_at <= $1
		ORDER BY fire_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func scanJobs(rows pgx.Rows) ([]Job, error) {
	var result []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.FireAt, &j.Purpose, &j.EntityID); err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
