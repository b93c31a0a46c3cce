package retrieval

import "context"

// VectorStore holds one embedding per job posting and answers
// nearest-neighbor queries over them. SQLiteStore scans in process;
// the Postgres backend delegates to pgvector.
type VectorStore interface {
	// Upsert stores or replaces the embedding for a job.
	Upsert(ctx context.Context, jobID string, vec []float32) error

	// Search returns at most topK jobs whose cosine similarity to vec is at
	// least threshold, best first.
	Search(ctx context.Context, vec []float32, topK int, threshold float32) ([]Match, error)

	// Delete removes the embedding for a job. Missing rows are not an error.
	Delete(ctx context.Context, jobID string) error

	// Count returns the number of stored embeddings.
	Count(ctx context.Context) (int, error)

	// Unindexed returns the ids of jobs that have no embedding yet.
	Unindexed(ctx context.Context) ([]string, error)
}

// Match is a job id with its similarity score.
type Match struct {
	JobID string
	Score float32
}
