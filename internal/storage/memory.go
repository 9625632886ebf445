package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps slots in process memory. A positive quota caps the total
// number of stored bytes, mimicking a browser-style storage quota.
type MemoryBackend struct {
	mu    sync.RWMutex
	slots map[string][]byte
	quota int
}

// NewMemoryBackend creates an empty in-memory backend; quota <= 0 means unlimited
func NewMemoryBackend(quota int) *MemoryBackend {
	return &MemoryBackend{
		slots: make(map[string][]byte),
		quota: quota,
	}
}

// SetQuota changes the byte quota for subsequent writes
func (m *MemoryBackend) SetQuota(quota int) {
	m.mu.Lock()
	m.quota = quota
	m.mu.Unlock()
}

// Get returns a copy of the slot contents
func (m *MemoryBackend) Get(_ context.Context, slot string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.slots[slot]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Set stores a copy of data, failing with ErrQuotaExceeded when it would not fit
func (m *MemoryBackend) Set(_ context.Context, slot string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quota > 0 {
		used := len(data)
		for name, existing := range m.slots {
			if name != slot {
				used += len(existing)
			}
		}
		if used > m.quota {
			return ErrQuotaExceeded
		}
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	m.slots[slot] = stored
	return nil
}

// Delete removes a slot; deleting a missing slot is a no-op
func (m *MemoryBackend) Delete(_ context.Context, slot string) error {
	m.mu.Lock()
	delete(m.slots, slot)
	m.mu.Unlock()
	return nil
}
