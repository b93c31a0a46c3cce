package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const profileColumns = `id, phone, name, city, skills, expected_salary, preferred_job_type, search_mode, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var p Profile
	var skills, createdAt, updatedAt string
	var mode sql.NullString
	err := row.Scan(&p.ID, &p.Phone, &p.Name, &p.City, &skills, &p.ExpectedSalary,
		&p.PreferredJobType, &mode, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	if p.Skills, err = decodeStrings(skills); err != nil {
		return Profile{}, fmt.Errorf("decoding skills for profile %s: %w", p.ID, err)
	}
	p.SearchMode = SearchMode(mode.String)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return Profile{}, fmt.Errorf("parsing created_at for profile %s: %w", p.ID, err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Profile{}, fmt.Errorf("parsing updated_at for profile %s: %w", p.ID, err)
	}
	return p, nil
}

func (s *Store) GetProfileByPhone(ctx context.Context, phone string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE phone = ?`, phone)
	return scanProfile(row)
}

func (s *Store) GetProfile(ctx context.Context, id string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	return scanProfile(row)
}

// CreateProfile inserts an empty profile for phone. If one already exists it is returned.
func (s *Store) CreateProfile(ctx context.Context, phone string) (Profile, error) {
	now := s.now()
	p := Profile{ID: uuid.New().String(), Phone: phone, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, phone, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(phone) DO NOTHING`,
		p.ID, p.Phone, formatTime(now), formatTime(now),
	)
	if err != nil {
		return Profile{}, fmt.Errorf("inserting profile: %w", err)
	}
	return s.GetProfileByPhone(ctx, phone)
}

// UpdateProfile applies u to the stored profile and returns the result.
func (s *Store) UpdateProfile(ctx context.Context, id string, u ProfileUpdate) (Profile, error) {
	var out Profile
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := scanProfile(tx.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
		if err != nil {
			return err
		}
		u.Apply(&p)
		p.UpdatedAt = s.now()

		var mode any
		if p.SearchMode != SearchModeUnset {
			mode = string(p.SearchMode)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE profiles SET name = ?, city = ?, skills = ?, expected_salary = ?,
				preferred_job_type = ?, search_mode = ?, updated_at = ?
			WHERE id = ?`,
			p.Name, p.City, encodeStrings(p.Skills), p.ExpectedSalary,
			p.PreferredJobType, mode, formatTime(p.UpdatedAt), id,
		)
		if err != nil {
			return fmt.Errorf("updating profile: %w", err)
		}
		out = p
		return nil
	})
	return out, err
}

// DeleteProfile removes a profile together with its messages and applications.
func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE profile_id = ?`, id); err != nil {
			return fmt.Errorf("deleting messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM applications WHERE seeker_id = ?`, id); err != nil {
			return fmt.Errorf("deleting applications: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting profile: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ResetUserData deletes every profile, message and application. Jobs are kept.
func (s *Store) ResetUserData(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"applications", "messages", "profiles"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		return nil
	})
}
