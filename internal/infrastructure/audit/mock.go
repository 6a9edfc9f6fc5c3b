package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockRepository is an in-memory implementation of Repository for testing.
type MockRepository struct {
	mu      sync.Mutex
	entries []Entry
	nextID  int64

	// Hooks for test assertions
	AppendCalled bool
	LastAppended *Entry

	// Error injection for testing error paths
	AppendErr error
	ListErr   error
	CountErr  error
	GetErr    error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{nextID: 1}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// Append stores a copy of entry.
func (m *MockRepository) Append(ctx context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalled = true
	m.LastAppended = entry
	if m.AppendErr != nil {
		return m.AppendErr
	}
	if err := prepare(entry, Options{}.withDefaults()); err != nil {
		return err
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now().UTC()
	}
	entry.ID = m.nextID
	m.nextID++
	m.entries = append(m.entries, *entry)
	return nil
}

// List filters and pages the stored entries, newest first.
func (m *MockRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	filter = filter.Normalized()
	matching := m.matching(filter)

	start := filter.Offset
	if start > len(matching) {
		start = len(matching)
	}
	end := start + filter.Limit
	if end > len(matching) {
		end = len(matching)
	}
	return matching[start:end], nil
}

// Count returns the number of matching entries.
func (m *MockRepository) Count(ctx context.Context, filter Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CountErr != nil {
		return 0, m.CountErr
	}
	return len(m.matching(filter.Normalized())), nil
}

// Get returns a stored entry by id.
func (m *MockRepository) Get(ctx context.Context, id int64) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	for _, e := range m.entries {
		if e.ID == id {
			copied := e
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// Entries returns everything appended so far, oldest first.
func (m *MockRepository) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

func (m *MockRepository) matching(filter Filter) []Entry {
	out := make([]Entry, 0)
	for _, e := range m.entries {
		if filter.SalesID != "" && !strings.Contains(strings.ToUpper(e.SalesID), strings.ToUpper(filter.SalesID)) {
			continue
		}
		if filter.ActionType != "" && e.ActionType != filter.ActionType {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}
