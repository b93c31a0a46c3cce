package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/jobassist/internal/storage"
)

// TaskStore abstracts the task queue and the job lookups the worker needs.
type TaskStore interface {
	ClaimNextTask(ctx context.Context, types []string) (*storage.Task, error)
	CompleteTask(ctx context.Context, id string) error
	FailTask(ctx context.Context, id, errMsg string) error
	GetJob(ctx context.Context, id string) (storage.Job, error)
	GetJobsByIDs(ctx context.Context, ids []string) ([]storage.Job, error)
}

// JobIndexer embeds postings into the vector store. Implemented by
// retrieval.Indexer.
type JobIndexer interface {
	IndexJob(ctx context.Context, job storage.Job) error
	IndexJobs(ctx context.Context, jobs []storage.Job) (int, error)
}

// Unindexer lists postings that have no embedding yet.
type Unindexer interface {
	Unindexed(ctx context.Context) ([]string, error)
}

// Worker processes embed_job tasks from the task queue.
type Worker struct {
	store   TaskStore
	indexer JobIndexer
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store TaskStore, indexer JobIndexer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		indexer: indexer,
		poll:    pollInterval,
		logger:  slog.Default().With("component", "ingest"),
	}
}

// Run polls for tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single embed_job task.
// Returns true if a task was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	task, err := w.store.ClaimNextTask(ctx, []string{storage.TaskEmbedJob})
	if err != nil {
		return false, fmt.Errorf("claiming task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	if err := w.process(ctx, task); err != nil {
		w.logger.Warn("task failed", "task_id", task.ID, "attempt", task.Attempts+1, "error", err)
		if failErr := w.store.FailTask(ctx, task.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark task as failed", "task_id", task.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteTask(ctx, task.ID); err != nil {
		return true, fmt.Errorf("completing task %s: %w", task.ID, err)
	}
	return true, nil
}

func (w *Worker) process(ctx context.Context, task *storage.Task) error {
	var payload storage.EmbedJobPayload
	if err := json.Unmarshal([]byte(task.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.JobID == "" {
		return errors.New("payload has no job_id")
	}

	job, err := w.store.GetJob(ctx, payload.JobID)
	if errors.Is(err, storage.ErrNotFound) {
		w.logger.Debug("job removed before embedding", "job_id", payload.JobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading job %s: %w", payload.JobID, err)
	}
	return w.indexer.IndexJob(ctx, job)
}

// Backfill embeds every posting the vector store does not know yet. Failures
// for single postings are logged and left for the next start.
func (w *Worker) Backfill(ctx context.Context, vectors Unindexer) (int, error) {
	ids, err := vectors.Unindexed(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing unindexed jobs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	jobs, err := w.store.GetJobsByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("loading unindexed jobs: %w", err)
	}

	n, err := w.indexer.IndexJobs(ctx, jobs)
	w.logger.Info("embedding backfill finished", "indexed", n, "pending", len(jobs))
	if ctx.Err() != nil {
		return n, ctx.Err()
	}
	if err != nil {
		w.logger.Warn("some jobs were not embedded", "error", err)
	}
	return n, nil
}
