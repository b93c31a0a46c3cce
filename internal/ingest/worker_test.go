package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/jobassist/internal/engine"
	"github.com/kalambet/jobassist/internal/retrieval"
	"github.com/kalambet/jobassist/internal/storage"
)

type mockEngine struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEngine) Chat(context.Context, string, []engine.Message, *engine.Schema) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (m *mockEngine) Embed(ctx context.Context, _ string, text string) ([]float32, error) {
	return m.embedFn(ctx, text)
}

func (m *mockEngine) IsRunning(context.Context) bool { return true }

func fixedVector(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func openTestStore(t *testing.T) (*storage.Store, *retrieval.SQLiteStore) {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, retrieval.NewSQLiteStore(s.DB())
}

func newTestWorker(store *storage.Store, vectors retrieval.VectorStore, embedFn func(context.Context, string) ([]float32, error)) *Worker {
	ix := retrieval.NewIndexer(&mockEngine{embedFn: embedFn}, "embed", vectors, 2)
	return NewWorker(store, ix, 0)
}

func enqueueTestJob(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	job := storage.Job{ID: jobID, Title: "Driver " + jobID, Company: "Ola", City: "Mumbai", CreatedAt: time.Now().UTC()}
	if err := store.SaveJob(context.Background(), job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	payload, _ := json.Marshal(storage.EmbedJobPayload{JobID: jobID})
	task := storage.Task{ID: "task-" + jobID, Type: storage.TaskEmbedJob, PayloadJSON: string(payload)}
	if err := store.EnqueueTask(context.Background(), task); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
}

func resetRunAfter(t *testing.T, store *storage.Store, taskID string) {
	t.Helper()
	if _, err := store.DB().Exec(`UPDATE tasks SET run_after = '2000-01-01T00:00:00.000000000Z' WHERE id = ?`, taskID); err != nil {
		t.Fatalf("reset run_after: %v", err)
	}
}

func taskStatus(t *testing.T, store *storage.Store, taskID string) (string, int) {
	t.Helper()
	task, err := store.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	return task.Status, task.Attempts
}

func TestWorker_ProcessesTask(t *testing.T) {
	store, vectors := openTestStore(t)
	enqueueTestJob(t, store, "job-1")
	w := newTestWorker(store, vectors, fixedVector)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	if n, _ := vectors.Count(context.Background()); n != 1 {
		t.Errorf("vector count = %d, want 1", n)
	}
	if status, _ := taskStatus(t, store, "task-job-1"); status != "completed" {
		t.Errorf("status = %q, want completed", status)
	}
}

func TestWorker_Idle(t *testing.T) {
	store, vectors := openTestStore(t)
	w := newTestWorker(store, vectors, fixedVector)

	didWork, err := w.RunOnce(context.Background())
	if err != nil || didWork {
		t.Errorf("RunOnce on empty queue = %v, %v", didWork, err)
	}
}

func TestWorker_DeletedJobCompletes(t *testing.T) {
	store, vectors := openTestStore(t)
	enqueueTestJob(t, store, "job-gone")
	if err := store.DeleteJob(context.Background(), "job-gone"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}

	var calls atomic.Int32
	w := newTestWorker(store, vectors, func(ctx context.Context, s string) ([]float32, error) {
		calls.Add(1)
		return fixedVector(ctx, s)
	})
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if calls.Load() != 0 {
		t.Error("deleted job should not be embedded")
	}
	if status, _ := taskStatus(t, store, "task-job-gone"); status != "completed" {
		t.Errorf("status = %q, want completed", status)
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store, vectors := openTestStore(t)
	enqueueTestJob(t, store, "job-r")

	var calls atomic.Int32
	w := newTestWorker(store, vectors, func(ctx context.Context, s string) ([]float32, error) {
		if n := calls.Add(1); n == 1 {
			return nil, fmt.Errorf("transient error %d", n)
		}
		return fixedVector(ctx, s)
	})
	ctx := context.Background()

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 1: %v", err)
	}
	if status, attempts := taskStatus(t, store, "task-job-r"); status != "pending" || attempts != 1 {
		t.Errorf("after 1st fail: status=%q attempts=%d, want pending/1", status, attempts)
	}

	// Backoff keeps the task out of reach until run_after passes.
	if didWork, _ := w.RunOnce(ctx); didWork {
		t.Error("task claimed before backoff elapsed")
	}

	resetRunAfter(t, store, "task-job-r")
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 2: %v", err)
	}
	if status, _ := taskStatus(t, store, "task-job-r"); status != "completed" {
		t.Errorf("after retry: status=%q, want completed", status)
	}
}

func TestWorker_MaxRetriesExceeded(t *testing.T) {
	store, vectors := openTestStore(t)
	enqueueTestJob(t, store, "job-m")
	w := newTestWorker(store, vectors, func(context.Context, string) ([]float32, error) {
		return nil, fmt.Errorf("permanent error")
	})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", i)
		}
		resetRunAfter(t, store, "task-job-m")
	}

	if status, attempts := taskStatus(t, store, "task-job-m"); status != "failed" || attempts != 3 {
		t.Errorf("final status=%q attempts=%d, want failed/3", status, attempts)
	}
}

func TestWorker_BadPayloadFails(t *testing.T) {
	store, vectors := openTestStore(t)
	task := storage.Task{ID: "bad", Type: storage.TaskEmbedJob, PayloadJSON: `{}`, MaxAttempts: 1}
	if err := store.EnqueueTask(context.Background(), task); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	w := newTestWorker(store, vectors, fixedVector)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if status, _ := taskStatus(t, store, "bad"); status != "failed" {
		t.Errorf("status = %q, want failed", status)
	}
}

func TestWorker_Run_StopsOnCancel(t *testing.T) {
	store, vectors := openTestStore(t)
	enqueueTestJob(t, store, "job-run")
	w := newTestWorker(store, vectors, fixedVector)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		if n, _ := vectors.Count(context.Background()); n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker never embedded the job")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBackfill(t *testing.T) {
	store, vectors := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.SaveJob(ctx, storage.Job{ID: id, Title: "Packer " + id, Company: "Flipkart", City: "Delhi"}); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}
	if err := vectors.Upsert(ctx, "a", []float32{1, 0, 0}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	var mu sync.Mutex
	var embedded []string
	w := newTestWorker(store, vectors, func(ctx context.Context, text string) ([]float32, error) {
		mu.Lock()
		embedded = append(embedded, text)
		mu.Unlock()
		if text == "Packer c  Delhi" {
			return nil, fmt.Errorf("rate limited")
		}
		return fixedVector(ctx, text)
	})

	n, err := w.Backfill(ctx, vectors)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if n != 1 {
		t.Errorf("indexed = %d, want 1", n)
	}
	if len(embedded) != 2 {
		t.Errorf("embedded %d postings, want 2 (a already indexed)", len(embedded))
	}
	if left, _ := vectors.Unindexed(ctx); len(left) != 1 || left[0] != "c" {
		t.Errorf("unindexed after backfill = %v, want [c]", left)
	}
}
