package ownership

import (
	"context"
	"sync"
)

// MemoryBackend keeps records for the lifetime of the process.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]map[string]Record // channel -> user -> record
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string]map[string]Record),
	}
}

func (m *MemoryBackend) Get(ctx context.Context, key Key) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key.Channel][key.User]
	return rec, ok, nil
}

func (m *MemoryBackend) Put(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	users, ok := m.records[rec.Channel]
	if !ok {
		users = make(map[string]Record)
		m.records[rec.Channel] = users
	}
	users[rec.User] = rec
	return nil
}

func (m *MemoryBackend) Forget(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if users, ok := m.records[key.Channel]; ok {
		delete(users, key.User)
		if len(users) == 0 {
			delete(m.records, key.Channel)
		}
	}
	return nil
}

func (m *MemoryBackend) ForgetChannel(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, channel)
	return nil
}

// Len counts stored records.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, users := range m.records {
		n += len(users)
	}
	return n
}
