package profile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/jobassist/internal/storage"
)

// --- Mock store ---

type mockStore struct {
	mu       sync.Mutex
	profiles map[string]storage.Profile // by phone
	applied  map[string][]string

	getCalls int
	failGet  error
}

func newMockStore() *mockStore {
	return &mockStore{profiles: make(map[string]storage.Profile), applied: make(map[string][]string)}
}

func (m *mockStore) GetProfileByPhone(ctx context.Context, phone string) (storage.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.failGet != nil {
		return storage.Profile{}, m.failGet
	}
	p, ok := m.profiles[phone]
	if !ok {
		return storage.Profile{}, storage.ErrNotFound
	}
	return p, nil
}

func (m *mockStore) CreateProfile(ctx context.Context, phone string) (storage.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := storage.Profile{ID: "id-" + phone, Phone: phone}
	m.profiles[phone] = p
	return p, nil
}

func (m *mockStore) UpdateProfile(ctx context.Context, id string, u storage.ProfileUpdate) (storage.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for phone, p := range m.profiles {
		if p.ID == id {
			u.Apply(&p)
			m.profiles[phone] = p
			return p, nil
		}
	}
	return storage.Profile{}, storage.ErrNotFound
}

func (m *mockStore) DeleteProfile(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for phone, p := range m.profiles {
		if p.ID == id {
			delete(m.profiles, phone)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *mockStore) GetAppliedJobIDs(ctx context.Context, seekerID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied[seekerID], nil
}

func (m *mockStore) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Tests ---

func strp(s string) *string { return &s }

func TestResolve_CreatesOnce(t *testing.T) {
	store := newMockStore()
	mgr := NewManager(store)
	ctx := context.Background()

	p, created, err := mgr.Resolve(ctx, "+911111111111")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !created || p.Phone != "+911111111111" {
		t.Errorf("first Resolve = %+v, created=%v", p, created)
	}

	again, created, err := mgr.Resolve(ctx, "+911111111111")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if created || again.ID != p.ID {
		t.Errorf("second Resolve = %+v, created=%v", again, created)
	}
}

func TestResolve_SeesWritesFromAnotherManager(t *testing.T) {
	store := newMockStore()
	a, b := NewManager(store), NewManager(store)
	ctx := context.Background()

	pa, _, err := a.Resolve(ctx, "+91")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	pb, _, err := b.Resolve(ctx, "+91")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := b.Update(ctx, pb, storage.ProfileUpdate{Name: strp("Ramesh")}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _, err := a.Resolve(ctx, "+91")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != pa.ID || got.Name != "Ramesh" {
		t.Errorf("Resolve after other manager's update = %+v, want Name Ramesh", got)
	}
	cached, _ := a.Get(ctx, "+91")
	if cached.Name != "Ramesh" {
		t.Errorf("Get after Resolve = %+v, want refreshed cache", cached)
	}
}

func TestGet_NotFound(t *testing.T) {
	_, err := NewManager(newMockStore()).Get(context.Background(), "+910000000000")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGet_StoreErrorWrapped(t *testing.T) {
	store := newMockStore()
	store.failGet = errors.New("connection reset")
	_, err := NewManager(store).Get(context.Background(), "+91")
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want wrapped store failure", err)
	}
}

func TestUpdate_RefreshesCache(t *testing.T) {
	store := newMockStore()
	mgr := NewManager(store)
	ctx := context.Background()

	p, _, _ := mgr.Resolve(ctx, "+91")
	p, err := mgr.Update(ctx, p, storage.ProfileUpdate{Name: strp("Ramesh"), Skills: []string{"Driver"}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if p.Name != "Ramesh" {
		t.Errorf("Name = %q", p.Name)
	}

	before := store.calls()
	got, _ := mgr.Get(ctx, "+91")
	if got.Name != "Ramesh" || store.calls() != before {
		t.Errorf("cached profile = %+v, store calls %d -> %d", got, before, store.calls())
	}
}

func TestUpdate_EmptyIsNoop(t *testing.T) {
	store := newMockStore()
	mgr := NewManager(store)
	p := storage.Profile{ID: "missing", Phone: "+91"}

	got, err := mgr.Update(context.Background(), p, storage.ProfileUpdate{})
	if err != nil || got.ID != "missing" {
		t.Errorf("Update(empty) = %+v, %v", got, err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	mgr := NewManager(newMockStore())
	ctx := context.Background()
	p, _, _ := mgr.Resolve(ctx, "+91")
	mgr.Update(ctx, p, storage.ProfileUpdate{Skills: []string{"Driver"}})

	got, _ := mgr.Get(ctx, "+91")
	got.Skills[0] = "Cook"

	again, _ := mgr.Get(ctx, "+91")
	if again.Skills[0] != "Driver" {
		t.Errorf("cache was mutated through returned profile: %v", again.Skills)
	}
}

func TestCacheTTL(t *testing.T) {
	store := newMockStore()
	clock := &mockClock{now: time.Now()}
	ttl := 60 * time.Second
	mgr := NewManagerWithClock(store, clock, ttl)
	ctx := context.Background()

	mgr.Resolve(ctx, "+91") // miss + create
	mgr.Get(ctx, "+91")
	mgr.Get(ctx, "+91")
	if store.calls() != 1 {
		t.Errorf("expected 1 store call, got %d", store.calls())
	}

	clock.Advance(ttl + time.Second)
	mgr.Get(ctx, "+91")
	if store.calls() != 2 {
		t.Errorf("expected 2 store calls after expiry, got %d", store.calls())
	}
}

func TestDelete(t *testing.T) {
	store := newMockStore()
	mgr := NewManager(store)
	ctx := context.Background()
	mgr.Resolve(ctx, "+91")

	if err := mgr.Delete(ctx, "+91"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := mgr.Get(ctx, "+91"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := mgr.Delete(ctx, "+91"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestAppliedJobIDs(t *testing.T) {
	store := newMockStore()
	store.applied["seeker"] = []string{"job-1", "job-2"}
	ids, err := NewManager(store).AppliedJobIDs(context.Background(), "seeker")
	if err != nil || len(ids) != 2 {
		t.Errorf("AppliedJobIDs = %v, %v", ids, err)
	}
}

func TestSummary(t *testing.T) {
	if got := Summary(storage.Profile{}); !strings.Contains(got, "not yet") {
		t.Errorf("empty summary = %q", got)
	}

	got := Summary(storage.Profile{
		Name: "Ramesh", City: "Mumbai", Skills: []string{"Driver", "Mechanic"},
		ExpectedSalary: "20000", SearchMode: storage.SearchModeGlobal,
	})
	for _, want := range []string{"Name: Ramesh", "City: Mumbai", "Skills: Driver, Mechanic", "Expected salary: 20000", "all of India"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q: %s", want, got)
		}
	}
}
