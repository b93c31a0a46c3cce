package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kalambet/jobassist/internal/storage"
)

// ErrNoVectorSearch is returned by MatchJobs when no vector index is configured.
var ErrNoVectorSearch = errors.New("vector search not configured")

// Store is the persistence surface the Directory needs.
type Store interface {
	SaveJob(ctx context.Context, j storage.Job) error
	GetJob(ctx context.Context, id string) (storage.Job, error)
	FindJobs(ctx context.Context, f storage.JobFilter) ([]storage.Job, error)
	ListJobs(ctx context.Context, limit, offset int) ([]storage.Job, error)
	CountJobs(ctx context.Context) (int, error)
	DeleteJob(ctx context.Context, id string) error
	EnqueueTask(ctx context.Context, t storage.Task) error
}

// Matcher ranks postings by similarity to a query vector.
type Matcher interface {
	MatchJobs(ctx context.Context, vec []float32) ([]storage.Job, error)
}

// Directory is the job catalog: keyword lookup, vector lookup and catalog
// maintenance. New postings are queued for embedding.
type Directory struct {
	store   Store
	matcher Matcher
	limit   int
}

// NewDirectory creates a Directory. matcher may be nil when no embedding
// backend is configured; limit <= 0 uses storage.DefaultJobLimit.
func NewDirectory(store Store, matcher Matcher, limit int) *Directory {
	if limit <= 0 {
		limit = storage.DefaultJobLimit
	}
	return &Directory{store: store, matcher: matcher, limit: limit}
}

// FindJobs returns postings in city (any city when empty) ranked by how many
// of skills they mention.
func (d *Directory) FindJobs(ctx context.Context, city string, skills []string) ([]storage.Job, error) {
	jobs, err := d.store.FindJobs(ctx, storage.JobFilter{City: city, Skills: skills, Limit: d.limit})
	if err != nil {
		return nil, fmt.Errorf("finding jobs: %w", err)
	}
	return jobs, nil
}

// MatchJobs returns postings nearest to vec.
func (d *Directory) MatchJobs(ctx context.Context, vec []float32) ([]storage.Job, error) {
	if d.matcher == nil {
		return nil, ErrNoVectorSearch
	}
	return d.matcher.MatchJobs(ctx, vec)
}

// Get returns one posting. A missing posting yields storage.ErrNotFound.
func (d *Directory) Get(ctx context.Context, id string) (storage.Job, error) {
	return d.store.GetJob(ctx, id)
}

// List pages through the catalog, newest first.
func (d *Directory) List(ctx context.Context, limit, offset int) ([]storage.Job, int, error) {
	jobs, err := d.store.ListJobs(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing jobs: %w", err)
	}
	total, err := d.store.CountJobs(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("counting jobs: %w", err)
	}
	return jobs, total, nil
}

// Add validates and stores a posting, then queues it for embedding. A posting
// without an id gets a random one.
func (d *Directory) Add(ctx context.Context, j storage.Job) (storage.Job, error) {
	if j.Type == "" {
		j.Type = storage.FullTime
	}
	if err := Validate(j); err != nil {
		return storage.Job{}, fmt.Errorf("invalid job: %w", err)
	}
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if err := d.store.SaveJob(ctx, j); err != nil {
		return storage.Job{}, fmt.Errorf("saving job: %w", err)
	}
	if err := d.queueEmbedding(ctx, j.ID); err != nil {
		// The startup backfill picks up postings that were never embedded.
		slog.Warn("queueing job embedding failed", "job_id", j.ID, "error", err)
	}
	return d.store.GetJob(ctx, j.ID)
}

// Import adds every posting, stopping at the first failure.
func (d *Directory) Import(ctx context.Context, jobs []storage.Job) (int, error) {
	for i, j := range jobs {
		if _, err := d.Add(ctx, j); err != nil {
			return i, fmt.Errorf("importing %q: %w", j.Title, err)
		}
	}
	return len(jobs), nil
}

// SeedIfEmpty imports the built-in demo catalog when the store holds no postings.
func (d *Directory) SeedIfEmpty(ctx context.Context) (int, error) {
	n, err := d.store.CountJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting jobs: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	return d.Import(ctx, SeedCatalog())
}

// Remove deletes a posting with its vector and applications.
func (d *Directory) Remove(ctx context.Context, id string) error {
	return d.store.DeleteJob(ctx, id)
}

func (d *Directory) queueEmbedding(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(storage.EmbedJobPayload{JobID: jobID})
	if err != nil {
		return err
	}
	return d.store.EnqueueTask(ctx, storage.Task{
		ID:          uuid.New().String(),
		Type:        storage.TaskEmbedJob,
		PayloadJSON: string(payload),
	})
}
