package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/jobassist/internal/storage"
)

// Store defines the storage operations the Manager needs.
// Implemented by storage.Store and postgres.Store.
type Store interface {
	GetProfileByPhone(ctx context.Context, phone string) (storage.Profile, error)
	CreateProfile(ctx context.Context, phone string) (storage.Profile, error)
	UpdateProfile(ctx context.Context, id string, u storage.ProfileUpdate) (storage.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
	GetAppliedJobIDs(ctx context.Context, seekerID string) ([]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type entry struct {
	p        storage.Profile
	cachedAt time.Time
}

// Manager provides cached access to seeker profiles keyed by phone number.
// Every write goes through the store first and then refreshes the cache.
type Manager struct {
	store Store
	clock Clock
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]entry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store Store) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store Store, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[string]entry),
	}
}

// Get returns the profile for phone, or storage.ErrNotFound.
func (m *Manager) Get(ctx context.Context, phone string) (storage.Profile, error) {
	m.mu.RLock()
	e, ok := m.cache[phone]
	m.mu.RUnlock()
	if ok && m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		return copyProfile(e.p), nil
	}

	p, err := m.store.GetProfileByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.forget(phone)
			return storage.Profile{}, err
		}
		return storage.Profile{}, fmt.Errorf("loading profile: %w", err)
	}
	m.remember(p)
	return copyProfile(p), nil
}

// Resolve returns the profile for phone, creating it when absent. created
// reports whether this call created it. Resolve always reads the store so a
// turn never acts on a copy another process has since changed; the cache
// only serves Get.
func (m *Manager) Resolve(ctx context.Context, phone string) (p storage.Profile, created bool, err error) {
	p, err = m.store.GetProfileByPhone(ctx, phone)
	if err == nil {
		m.remember(p)
		return copyProfile(p), false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Profile{}, false, fmt.Errorf("loading profile: %w", err)
	}

	p, err = m.store.CreateProfile(ctx, phone)
	if err != nil {
		// Another process may have created it first.
		if existing, getErr := m.store.GetProfileByPhone(ctx, phone); getErr == nil {
			m.remember(existing)
			return copyProfile(existing), false, nil
		}
		return storage.Profile{}, false, fmt.Errorf("creating profile: %w", err)
	}
	m.remember(p)
	return copyProfile(p), true, nil
}

// Update applies u to the stored profile and returns the result.
func (m *Manager) Update(ctx context.Context, p storage.Profile, u storage.ProfileUpdate) (storage.Profile, error) {
	if u.IsEmpty() {
		return p, nil
	}
	updated, err := m.store.UpdateProfile(ctx, p.ID, u)
	if err != nil {
		m.forget(p.Phone)
		return storage.Profile{}, fmt.Errorf("updating profile: %w", err)
	}
	m.remember(updated)
	return copyProfile(updated), nil
}

// Delete removes the profile for phone together with its messages and applications.
func (m *Manager) Delete(ctx context.Context, phone string) error {
	p, err := m.Get(ctx, phone)
	if err != nil {
		return err
	}
	defer m.forget(phone)
	if err := m.store.DeleteProfile(ctx, p.ID); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	return nil
}

// AppliedJobIDs returns the ids of jobs the seeker has applied for.
func (m *Manager) AppliedJobIDs(ctx context.Context, seekerID string) ([]string, error) {
	ids, err := m.store.GetAppliedJobIDs(ctx, seekerID)
	if err != nil {
		return nil, fmt.Errorf("loading applications: %w", err)
	}
	return ids, nil
}

// Flush drops every cached profile.
func (m *Manager) Flush() {
	m.mu.Lock()
	m.cache = make(map[string]entry)
	m.mu.Unlock()
}

func (m *Manager) remember(p storage.Profile) {
	m.mu.Lock()
	m.cache[p.Phone] = entry{p: copyProfile(p), cachedAt: m.clock.Now()}
	m.mu.Unlock()
}

func (m *Manager) forget(phone string) {
	m.mu.Lock()
	delete(m.cache, phone)
	m.mu.Unlock()
}

func copyProfile(p storage.Profile) storage.Profile {
	if p.Skills != nil {
		p.Skills = append([]string(nil), p.Skills...)
	}
	return p
}

// Summary renders p as compact lines suitable for a system prompt.
func Summary(p storage.Profile) string {
	var lines []string
	add := func(label, v string) {
		if v != "" {
			lines = append(lines, label+": "+v)
		}
	}
	add("Name", p.Name)
	add("City", p.City)
	add("Skills", strings.Join(p.Skills, ", "))
	add("Expected salary", p.ExpectedSalary)
	add("Preferred job type", p.PreferredJobType)
	switch p.SearchMode {
	case storage.SearchModeLocal:
		add("Search", "local jobs only")
	case storage.SearchModeGlobal:
		add("Search", "all of India")
	}
	if len(lines) == 0 {
		return "Seeker profile: not yet filled in."
	}
	return strings.Join(lines, "\n")
}
