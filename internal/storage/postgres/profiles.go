package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kalambet/jobassist/internal/storage"
)

const profileColumns = `id, phone, name, city, skills, expected_salary, preferred_job_type, search_mode, created_at, updated_at`

func scanProfile(row pgx.Row) (storage.Profile, error) {
	var p storage.Profile
	var mode *string
	err := row.Scan(&p.ID, &p.Phone, &p.Name, &p.City, &p.Skills, &p.ExpectedSalary,
		&p.PreferredJobType, &mode, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return storage.Profile{}, notFound(err)
	}
	p.Skills = orNil(p.Skills)
	if mode != nil {
		p.SearchMode = storage.SearchMode(*mode)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) GetProfileByPhone(ctx context.Context, phone string) (storage.Profile, error) {
	return scanProfile(s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE phone = $1`, phone))
}

func (s *Store) GetProfile(ctx context.Context, id string) (storage.Profile, error) {
	return scanProfile(s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
}

// CreateProfile inserts an empty profile for phone. If one already exists it is returned.
func (s *Store) CreateProfile(ctx context.Context, phone string) (storage.Profile, error) {
	now := s.now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, phone, created_at, updated_at) VALUES ($1, $2, $3, $3)
		ON CONFLICT (phone) DO NOTHING`,
		uuid.New().String(), phone, now,
	)
	if err != nil {
		return storage.Profile{}, fmt.Errorf("inserting profile: %w", err)
	}
	return s.GetProfileByPhone(ctx, phone)
}

// UpdateProfile applies u to the stored profile under a row lock.
func (s *Store) UpdateProfile(ctx context.Context, id string, u storage.ProfileUpdate) (storage.Profile, error) {
	var out storage.Profile
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		u.Apply(&p)
		p.UpdatedAt = s.now()

		var mode *string
		if p.SearchMode != storage.SearchModeUnset {
			m := string(p.SearchMode)
			mode = &m
		}
		_, err = tx.Exec(ctx, `
			UPDATE profiles SET name = $1, city = $2, skills = $3, expected_salary = $4,
				preferred_job_type = $5, search_mode = $6, updated_at = $7
			WHERE id = $8`,
			p.Name, p.City, nonNil(p.Skills), p.ExpectedSalary, p.PreferredJobType, mode, p.UpdatedAt, id,
		)
		if err != nil {
			return fmt.Errorf("updating profile: %w", err)
		}
		out = p
		return nil
	})
	return out, err
}

// DeleteProfile removes a profile; messages and applications cascade.
func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ResetUserData deletes every profile, message and application. Jobs are kept.
func (s *Store) ResetUserData(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE applications, messages, profiles`)
	if err != nil {
		return fmt.Errorf("truncating user tables: %w", err)
	}
	return nil
}
