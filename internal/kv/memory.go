package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

var _ Store = (*Memory)(nil)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is an in-process Store for tests and single-node development.
type Memory struct {
	mu   sync.Mutex
	data map[string]memEntry
	now  func() time.Time
	// Fail, when set, is returned by every operation.
	fail error
}

// MemoryOption configures Memory.
type MemoryOption func(*Memory)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		data: make(map[string]memEntry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FailWith makes every subsequent call return err; nil restores normal operation.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	e, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	if e.expired(m.now()) {
		delete(m.data, key)
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.data[key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	now := m.now()
	e, ok := m.data[key]
	if ok && e.expired(now) {
		ok = false
	}
	var n int64
	if ok {
		parsed, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	} else {
		e = memEntry{}
		if ttl > 0 {
			e.expiresAt = now.Add(ttl)
		}
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	m.data[key] = e
	return n, nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail
}

// Has reports whether key is physically present, ignoring expiry.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// Len returns the number of stored keys, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
