package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/kalambet/jobassist/internal/retrieval"
)

var _ retrieval.VectorStore = (*VectorStore)(nil)

// VectorStore keeps job embeddings in a pgvector column and ranks them with
// the cosine distance operator.
type VectorStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func (v *VectorStore) Upsert(ctx context.Context, jobID string, vec []float32) error {
	_, err := v.pool.Exec(ctx, `
		INSERT INTO job_vectors (job_id, embedding, created_at) VALUES ($1, $2::vector, $3)
		ON CONFLICT (job_id) DO UPDATE SET embedding = EXCLUDED.embedding, created_at = EXCLUDED.created_at`,
		jobID, pgvector.NewVector(vec), v.now(),
	)
	if err != nil {
		return fmt.Errorf("upserting vector for job %s: %w", jobID, err)
	}
	return nil
}

// Search skips embeddings whose dimension differs from vec, which happens
// after switching embedding models.
func (v *VectorStore) Search(ctx context.Context, vec []float32, topK int, threshold float32) ([]retrieval.Match, error) {
	if len(vec) == 0 || topK <= 0 {
		return nil, nil
	}
	rows, err := v.pool.Query(ctx, `
		SELECT job_id, 1 - (embedding <=> $1::vector) AS score
		FROM job_vectors
		WHERE vector_dims(embedding) = $2 AND 1 - (embedding <=> $1::vector) >= $3
		ORDER BY embedding <=> $1::vector
		LIMIT $4`,
		pgvector.NewVector(vec), len(vec), float64(threshold), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (retrieval.Match, error) {
		var m retrieval.Match
		var score float64
		err := row.Scan(&m.JobID, &score)
		m.Score = float32(score)
		return m, err
	})
}

func (v *VectorStore) Delete(ctx context.Context, jobID string) error {
	_, err := v.pool.Exec(ctx, `DELETE FROM job_vectors WHERE job_id = $1`, jobID)
	return err
}

func (v *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := v.pool.QueryRow(ctx, `SELECT COUNT(*) FROM job_vectors`).Scan(&n)
	return n, err
}

func (v *VectorStore) Unindexed(ctx context.Context) ([]string, error) {
	rows, err := v.pool.Query(ctx, `
		SELECT j.id FROM jobs j
		LEFT JOIN job_vectors v ON v.job_id = j.id
		WHERE v.job_id IS NULL
		ORDER BY j.created_at ASC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
