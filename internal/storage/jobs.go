package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultJobLimit caps keyword lookups when the filter sets no limit.
const DefaultJobLimit = 5

const jobColumns = `id, title, company, city, salary, type, description, created_at`

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var typ, createdAt string
	err := row.Scan(&j.ID, &j.Title, &j.Company, &j.City, &j.Salary, &typ, &j.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	j.Type = EmploymentType(typ)
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return Job{}, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]Job, error) {
	defer rows.Close()
	var out []Job
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
func (s *Store) SaveJob(ctx context.Context, j Job) error {
	if j.ID == "" {
		return errors.New("job id is required")
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = s.now()
	}
	if j.Type == "" {
		j.Type = FullTime
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, company = excluded.company,
			city = excluded.city, salary = excluded.salary, type = excluded.type,
			description = excluded.description`,
		j.ID, j.Title, j.Company, j.City, j.Salary, string(j.Type), j.Description, formatTime(j.CreatedAt),
	)
	return err
}

func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	return scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
}

// GetJobsByIDs returns the postings for ids in the order given. Unknown ids are skipped.
func (s *Store) GetJobsByIDs(ctx context.Context, ids []string) ([]Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	found, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	return orderByIDs(found, ids), nil
}

func orderByIDs(jobs []Job, ids []string) []Job {
	byID := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}
	out := make([]Job, 0, len(jobs))
	for _, id := range ids {
		if j, ok := byID[id]; ok {
			out = append(out, j)
		}
	}
	return out
}

// FindJobs matches city as a case-insensitive substring and ranks postings
// by how many skills appear in their title or description.
func (s *Store) FindJobs(ctx context.Context, f JobFilter) ([]Job, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultJobLimit
	}

	var where []string
	var args []any
	score := "0"
	var scoreArgs []any
	for _, skill := range f.Skills {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			continue
		}
		score += " + (CASE WHEN title LIKE ? OR description LIKE ? THEN 1 ELSE 0 END)"
		pat := "%" + skill + "%"
		scoreArgs = append(scoreArgs, pat, pat)
	}
	if city := strings.TrimSpace(f.City); city != "" {
		where = append(where, "city LIKE ?")
		args = append(args, "%"+city+"%")
	}

	query := `SELECT ` + jobColumns + ` FROM (SELECT *, ` + score + ` AS relevance FROM jobs)`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY relevance DESC, created_at DESC LIMIT ?`

	all := append(scoreArgs, args...)
	all = append(all, limit)
	rows, err := s.db.QueryContext(ctx, query, all...)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

func (s *Store) ListJobs(ctx context.Context, limit, offset int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

func (s *Store) CountJobs(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n)
	return n, err
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM applications WHERE job_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM job_vectors WHERE job_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CreateApplication records an application. It reports false without error
// when the pair already exists, and ErrJobNotFound when the job is missing.
func (s *Store) CreateApplication(ctx context.Context, jobID, seekerID string) (bool, error) {
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE id = ?`, jobID).Scan(&exists); err != nil {
			return fmt.Errorf("checking job: %w", err)
		}
		if exists == 0 {
			return ErrJobNotFound
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO applications (id, job_id, seeker_id, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(job_id, seeker_id) DO NOTHING`,
			uuid.New().String(), jobID, seekerID, formatTime(s.now()),
		)
		if err != nil {
			return fmt.Errorf("inserting application: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n == 1
		return nil
	})
	return created, err
}

// GetAppliedJobIDs returns the job ids a seeker has applied to, oldest first.
func (s *Store) GetAppliedJobIDs(ctx context.Context, seekerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT job_id FROM applications WHERE seeker_id = ? ORDER BY created_at ASC`, seekerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
