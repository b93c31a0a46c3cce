package retrieval

import (
	"context"
	"fmt"

	"github.com/kalambet/jobassist/internal/storage"
)

// Defaults for similarity lookups.
const (
	DefaultThreshold float32 = 0.3
	DefaultTopK              = 5
)

// JobLoader resolves job ids to postings, preserving the given order.
type JobLoader interface {
	GetJobsByIDs(ctx context.Context, ids []string) ([]storage.Job, error)
}

// Retriever turns a query vector into ranked job postings.
type Retriever struct {
	store     VectorStore
	jobs      JobLoader
	topK      int
	threshold float32
}

// NewRetriever creates a Retriever. Non-positive topK falls back to DefaultTopK.
func NewRetriever(store VectorStore, jobs JobLoader, topK int, threshold float32) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{store: store, jobs: jobs, topK: topK, threshold: threshold}
}

// MatchJobs returns up to topK postings with similarity at or above the threshold, best first.
func (r *Retriever) MatchJobs(ctx context.Context, vec []float32) ([]storage.Job, error) {
	matches, err := r.store.Search(ctx, vec, r.topK, r.threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.JobID
	}
	jobs, err := r.jobs.GetJobsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading matched jobs: %w", err)
	}
	return jobs, nil
}
