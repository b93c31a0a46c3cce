package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kalambet/jobassist/internal/storage"
)

const jobColumns = `id, title, company, city, salary, type, description, created_at`

// pgForeignKeyViolation is SQLSTATE foreign_key_violation.
const pgForeignKeyViolation = "23503"

func scanJob(row pgx.Row) (storage.Job, error) {
	var j storage.Job
	var typ string
	if err := row.Scan(&j.ID, &j.Title, &j.Company, &j.City, &j.Salary, &typ, &j.Description, &j.CreatedAt); err != nil {
		return storage.Job{}, notFound(err)
	}
	j.Type = storage.EmploymentType(typ)
	j.CreatedAt = j.CreatedAt.UTC()
	return j, nil
}

func collectJobs(rows pgx.Rows) ([]storage.Job, error) {
	defer rows.Close()
	var out []storage.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// SaveJob inserts or replaces a posting.
func (s *Store) SaveJob(ctx context.Context, j storage.Job) error {
	if j.ID == "" {
		return errors.New("job id is required")
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = s.now()
	}
	if j.Type == "" {
		j.Type = storage.FullTime
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, company = EXCLUDED.company,
			city = EXCLUDED.city, salary = EXCLUDED.salary, type = EXCLUDED.type,
			description = EXCLUDED.description`,
		j.ID, j.Title, j.Company, j.City, j.Salary, string(j.Type), j.Description, j.CreatedAt,
	)
	return err
}

func (s *Store) GetJob(ctx context.Context, id string) (storage.Job, error) {
	return scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

// GetJobsByIDs returns the postings for ids in the order given. Unknown ids are skipped.
func (s *Store) GetJobsByIDs(ctx context.Context, ids []string) ([]storage.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE id = ANY($1)
		ORDER BY array_position($1, id)`, ids)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// FindJobs matches city as a case-insensitive substring and ranks postings
// by how many skills appear in their title or description.
func (s *Store) FindJobs(ctx context.Context, f storage.JobFilter) ([]storage.Job, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = storage.DefaultJobLimit
	}

	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	score := "0"
	for _, skill := range f.Skills {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			continue
		}
		p := arg("%" + skill + "%")
		score += fmt.Sprintf(" + (CASE WHEN title ILIKE %s OR description ILIKE %s THEN 1 ELSE 0 END)", p, p)
	}

	query := `SELECT ` + jobColumns + ` FROM (SELECT *, ` + score + ` AS relevance FROM jobs) ranked`
	if city := strings.TrimSpace(f.City); city != "" {
		query += ` WHERE city ILIKE ` + arg("%"+city+"%")
	}
	query += ` ORDER BY relevance DESC, created_at DESC LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (s *Store) ListJobs(ctx context.Context, limit, offset int) ([]storage.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (s *Store) CountJobs(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n)
	return n, err
}

// DeleteJob removes a posting; its vector and applications cascade.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateApplication records an application. It reports false without error
// when the pair already exists, and ErrJobNotFound when the job is missing.
func (s *Store) CreateApplication(ctx context.Context, jobID, seekerID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO applications (id, job_id, seeker_id, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id, seeker_id) DO NOTHING`,
		uuid.New().String(), jobID, seekerID, s.now(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation && pgErr.ConstraintName == "applications_job_id_fkey" {
		return false, storage.ErrJobNotFound
	}
	if err != nil {
		return false, fmt.Errorf("inserting application: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetAppliedJobIDs returns the job ids a seeker has applied to, oldest first.
func (s *Store) GetAppliedJobIDs(ctx context.Context, seekerID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT job_id FROM applications WHERE seeker_id = $1 ORDER BY created_at ASC`, seekerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
