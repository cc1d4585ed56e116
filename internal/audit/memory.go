package audit

import (
	"context"
	"sort"
	"sync"
)

var (
	_ Appender = (*MemoryStore)(nil)
	_ Reader   = (*MemoryStore)(nil)
)

// MemoryStore keeps entries in process, for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	// Err, when set, fails every Append.
	Err error
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// FailWith sets Err under the store's lock, for use while other goroutines
// append. nil restores normal operation.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}

func (m *MemoryStore) Append(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cp := *e
	if e.Metadata != nil {
		cp.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	m.entries = append(m.entries, cp)
	return nil
}

func (m *MemoryStore) Query(_ context.Context, f Filter) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		switch {
		case f.ActorID != "" && e.ActorID != f.ActorID,
			f.Action != "" && e.Action != f.Action,
			f.ResourceType != "" && e.ResourceType != f.ResourceType,
			f.ResourceID != "" && e.ResourceID != f.ResourceID,
			!f.From.IsZero() && e.Timestamp.Before(f.From),
			!f.To.IsZero() && !e.Timestamp.Before(f.To):
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Entries returns a copy of everything appended so far, oldest first.
func (m *MemoryStore) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
