package postgres

import (
	"context"
	"fmt"

	"github.com/kalambet/jobassist/internal/storage"
)

const defaultMaxAttempts = 3

const taskColumns = `id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error`

func (s *Store) EnqueueTask(ctx context.Context, t storage.Task) error {
	now := s.now()
	runAfter := now
	if !t.RunAfter.IsZero() {
		runAfter = t.RunAfter
	}
	maxAttempts := t.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', 0, $4, $5, $6, $6)`,
		t.ID, t.Type, t.PayloadJSON, maxAttempts, runAfter, now,
	)
	return err
}

// ClaimNextTask marks the oldest runnable pending task of the given types as
// running and returns it. Concurrent workers never claim the same row.
// It returns nil when nothing is runnable.
func (s *Store) ClaimNextTask(ctx context.Context, types []string) (*storage.Task, error) {
	if len(types) == 0 {
		return nil, nil
	}
	now := s.now()
	rows, err := s.pool.Query(ctx, `
		UPDATE tasks SET status = 'running', updated_at = $1
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = 'pending' AND run_after <= $1 AND type = ANY($2)
			ORDER BY run_after ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns, now, types)
	if err != nil {
		return nil, fmt.Errorf("claiming task: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var t storage.Task
	var lastError *string
	if err := rows.Scan(&t.ID, &t.Type, &t.PayloadJSON, &t.Status, &t.Attempts, &t.MaxAttempts,
		&t.RunAfter, &t.CreatedAt, &t.UpdatedAt, &lastError); err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}
	if lastError != nil {
		t.LastError = *lastError
	}
	return &t, nil
}

func (s *Store) CompleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tasks SET status = 'completed', updated_at = $1 WHERE id = $2`, s.now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FailTask records a failed attempt. The task is retried after 2^attempts
// seconds until it runs out of attempts.
func (s *Store) FailTask(ctx context.Context, id, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET
			attempts = attempts + 1,
			last_error = $2,
			updated_at = $3,
			status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
			run_after = CASE WHEN attempts + 1 >= max_attempts THEN run_after
				ELSE $3 + make_interval(secs => power(2, attempts + 1)) END
		WHERE id = $1`,
		id, errMsg, s.now(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
