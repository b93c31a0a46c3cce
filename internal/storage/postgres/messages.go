package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kalambet/jobassist/internal/storage"
)

// AppendMessages stores msgs for a profile in one batch inside a
// transaction, in slice order.
func (s *Store) AppendMessages(ctx context.Context, profileID string, msgs []storage.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	now := s.now()
	for i := range msgs {
		m := &msgs[i]
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if m.CreatedAt.IsZero() || m.CreatedAt.Before(now) {
			m.CreatedAt = now
		}
		now = m.CreatedAt
		m.ProfileID = profileID

		var jobID *string
		if m.JobID != "" {
			id := m.JobID
			jobID = &id
		}
		batch.Queue(`
			INSERT INTO messages (id, profile_id, sender, type, content, job_id, options, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.ID, profileID, string(m.Sender), string(m.Type), m.Content, jobID, nonNil(m.Options), m.CreatedAt,
		)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting messages: %w", err)
		}
		return nil
	})
}

// GetMessageHistory returns the latest limit messages in chronological
// order. A limit of zero or less returns everything.
func (s *Store) GetMessageHistory(ctx context.Context, profileID string, limit int) ([]storage.Message, error) {
	query := `SELECT id, profile_id, sender, type, content, job_id, options, created_at FROM (
			SELECT seq, id, profile_id, sender, type, content, job_id, options, created_at
			FROM messages WHERE profile_id = $1
			ORDER BY created_at DESC, seq DESC`
	args := []any{profileID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	query += `) recent ORDER BY created_at ASC, seq ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Message
	for rows.Next() {
		var m storage.Message
		var sender, typ string
		var jobID *string
		if err := rows.Scan(&m.ID, &m.ProfileID, &sender, &typ, &m.Content, &jobID, &m.Options, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Sender = storage.Sender(sender)
		m.Type = storage.MessageType(typ)
		if jobID != nil {
			m.JobID = *jobID
		}
		m.Options = orNil(m.Options)
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
