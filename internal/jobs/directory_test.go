package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/jobassist/internal/storage"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type stubMatcher struct {
	jobs []storage.Job
	err  error
	got  []float32
}

func (m *stubMatcher) MatchJobs(ctx context.Context, vec []float32) ([]storage.Job, error) {
	m.got = vec
	return m.jobs, m.err
}

func TestAdd_AssignsIDAndQueuesEmbedding(t *testing.T) {
	s := openStore(t)
	d := NewDirectory(s, nil, 0)
	ctx := context.Background()

	j, err := d.Add(ctx, storage.Job{Title: "Electrician", Company: "Tata Power", City: "Mumbai", Salary: "₹20,000/month"})
	require.NoError(t, err)
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, storage.FullTime, j.Type)
	assert.False(t, j.CreatedAt.IsZero())

	task, err := s.ClaimNextTask(ctx, []string{storage.TaskEmbedJob})
	require.NoError(t, err)
	require.NotNil(t, task, "embedding task should be queued")

	var payload storage.EmbedJobPayload
	require.NoError(t, json.Unmarshal([]byte(task.PayloadJSON), &payload))
	assert.Equal(t, j.ID, payload.JobID)
}

func TestAdd_Invalid(t *testing.T) {
	d := NewDirectory(openStore(t), nil, 0)

	_, err := d.Add(context.Background(), storage.Job{Title: "Cook"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "company")

	_, err = d.Add(context.Background(), storage.Job{Title: "Cook", Company: "Dhaba", City: "Pune", Type: "seasonal"})
	require.Error(t, err)
}

func TestFindJobs_UsesLimit(t *testing.T) {
	s := openStore(t)
	d := NewDirectory(s, nil, 2)
	ctx := context.Background()
	for _, title := range []string{"Driver", "Cab Driver", "Truck Driver"} {
		_, err := d.Add(ctx, storage.Job{Title: title, Company: "Ola", City: "Mumbai"})
		require.NoError(t, err)
	}

	jobs, err := d.FindJobs(ctx, "mumbai", []string{"Driver"})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestMatchJobs(t *testing.T) {
	d := NewDirectory(openStore(t), nil, 0)
	_, err := d.MatchJobs(context.Background(), []float32{1})
	assert.ErrorIs(t, err, ErrNoVectorSearch)

	m := &stubMatcher{jobs: []storage.Job{{ID: "a"}}}
	d = NewDirectory(openStore(t), m, 0)
	jobs, err := d.MatchJobs(context.Background(), []float32{0.5, 0.5})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.Equal(t, []float32{0.5, 0.5}, m.got)

	m.err = errors.New("index offline")
	_, err = d.MatchJobs(context.Background(), []float32{1})
	assert.Error(t, err)
}

func TestSeedIfEmpty(t *testing.T) {
	s := openStore(t)
	d := NewDirectory(s, nil, 0)
	ctx := context.Background()

	n, err := d.SeedIfEmpty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	n, err = d.SeedIfEmpty(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "seeding a non-empty store is a no-op")

	jobs, total, err := d.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Len(t, jobs, 6)

	mumbai, err := d.FindJobs(ctx, "Mumbai", nil)
	require.NoError(t, err)
	assert.Len(t, mumbai, 2)
}

func TestImport_Idempotent(t *testing.T) {
	s := openStore(t)
	d := NewDirectory(s, nil, 0)
	ctx := context.Background()

	_, err := d.Import(ctx, SeedCatalog())
	require.NoError(t, err)
	_, err = d.Import(ctx, SeedCatalog())
	require.NoError(t, err)

	n, err := s.CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n, "stable ids make re-import an update")
}

func TestRemove(t *testing.T) {
	s := openStore(t)
	d := NewDirectory(s, nil, 0)
	ctx := context.Background()

	j, err := d.Add(ctx, storage.Job{Title: "Cook", Company: "Dhaba", City: "Pune"})
	require.NoError(t, err)
	require.NoError(t, d.Remove(ctx, j.ID))

	_, err = d.Get(ctx, j.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoadCatalog(t *testing.T) {
	src := `
jobs:
  - id: job-7
    title: Tailor
    company: Fabindia
    city: Jaipur
    salary: "₹16,000/month"
    type: Part time
    description: Stitching and alterations.
  - title: Helper
    company: BuildCo
    city: Chennai
`
	jobs, err := LoadCatalog(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "job-7", jobs[0].ID)
	assert.Equal(t, storage.PartTime, jobs[0].Type)
	assert.Equal(t, storage.FullTime, jobs[1].Type)
	assert.Equal(t, StableID(jobs[1]), jobs[1].ID)
}

func TestLoadCatalog_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown field":   "jobs:\n  - title: A\n    company: B\n    city: C\n    pay: 10\n",
		"missing city":    "jobs:\n  - title: A\n    company: B\n",
		"bad type":        "jobs:\n  - title: A\n    company: B\n    city: C\n    type: gig\n",
		"not a catalogue": "- just\n- a list\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCatalog(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog_Empty(t *testing.T) {
	jobs, err := LoadCatalog(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSeedCatalog(t *testing.T) {
	jobs := SeedCatalog()
	require.Len(t, jobs, 6)
	seen := map[string]bool{}
	for _, j := range jobs {
		assert.NoError(t, Validate(j))
		assert.False(t, seen[j.ID], "duplicate id %s", j.ID)
		seen[j.ID] = true
	}
	assert.Equal(t, storage.Contract, jobs[3].Type)
}
