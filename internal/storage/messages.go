package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// AppendMessages stores msgs for a profile in one transaction, in slice order.
// Missing IDs and timestamps are filled in; each stamp is never earlier than
// the previous one.
func (s *Store) AppendMessages(ctx context.Context, profileID string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO messages (id, profile_id, sender, type, content, job_id, options, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing message insert: %w", err)
		}
		defer stmt.Close()

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

			var jobID any
			if m.JobID != "" {
				jobID = m.JobID
			}
			if _, err := stmt.ExecContext(ctx, m.ID, profileID, string(m.Sender), string(m.Type),
				m.Content, jobID, encodeStrings(m.Options), formatTime(m.CreatedAt)); err != nil {
				return fmt.Errorf("inserting message %d: %w", i, err)
			}
		}
		return nil
	})
}

// GetMessageHistory returns the latest limit messages for a profile in
// chronological order. A limit of zero or less returns everything.
func (s *Store) GetMessageHistory(ctx context.Context, profileID string, limit int) ([]Message, error) {
	query := `SELECT id, profile_id, sender, type, content, job_id, options, created_at FROM (
			SELECT seq, id, profile_id, sender, type, content, job_id, options, created_at
			FROM messages WHERE profile_id = ?
			ORDER BY created_at DESC, seq DESC`
	args := []any{profileID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	query += `) ORDER BY created_at ASC, seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var sender, typ, options, createdAt string
		var jobID sql.NullString
		if err := rows.Scan(&m.ID, &m.ProfileID, &sender, &typ, &m.Content, &jobID, &options, &createdAt); err != nil {
			return nil, err
		}
		m.Sender = Sender(sender)
		m.Type = MessageType(typ)
		m.JobID = jobID.String
		if m.Options, err = decodeStrings(options); err != nil {
			return nil, fmt.Errorf("decoding options for message %s: %w", m.ID, err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for message %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
