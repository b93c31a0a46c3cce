package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/kalambet/jobassist/internal/engine"
	"github.com/kalambet/jobassist/internal/storage"
	"golang.org/x/sync/errgroup"
)

const defaultIndexConcurrency = 4

// Indexer embeds job postings and writes the vectors to a VectorStore.
type Indexer struct {
	engine      engine.Engine
	model       string
	store       VectorStore
	concurrency int
}

// NewIndexer creates an Indexer. Non-positive concurrency uses a default of 4.
func NewIndexer(e engine.Engine, model string, store VectorStore, concurrency int) *Indexer {
	if concurrency <= 0 {
		concurrency = defaultIndexConcurrency
	}
	return &Indexer{engine: e, model: model, store: store, concurrency: concurrency}
}

// IndexJob embeds one posting and stores its vector.
func (ix *Indexer) IndexJob(ctx context.Context, job storage.Job) error {
	vec, err := ix.engine.Embed(ctx, ix.model, job.EmbeddingText())
	if err != nil {
		return fmt.Errorf("embedding job %s: %w", job.ID, err)
	}
	if len(vec) == 0 {
		return fmt.Errorf("embedding job %s: empty vector", job.ID)
	}
	return ix.store.Upsert(ctx, job.ID, vec)
}

// IndexJobs embeds postings concurrently. A failing posting is logged and
// skipped; the count of indexed postings is returned along with the joined
// failures.
func (ix *Indexer) IndexJobs(ctx context.Context, jobs []storage.Job) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}
	var indexed atomic.Int64
	errs := make([]error, len(jobs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			if err := ix.IndexJob(gCtx, job); err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				slog.Warn("indexing job failed", "job_id", job.ID, "error", err)
				errs[i] = err
				return nil
			}
			indexed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(indexed.Load()), err
	}
	return int(indexed.Load()), errors.Join(errs...)
}
