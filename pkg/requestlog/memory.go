package requestlog

import (
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultCapacity is used when NewMemory is given a non-positive capacity.
const DefaultCapacity = 100

// Memory is a Store holding the last N entries in a circular buffer.
type Memory struct {
	mu      sync.RWMutex
	entries []*Entry
	next    int // slot for the next entry once the buffer is full
	full    bool
}

var _ Store = (*Memory)(nil)

// NewMemory creates a Memory holding up to capacity entries.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{entries: make([]*Entry, 0, capacity)}
}

// Capacity returns the maximum number of entries kept.
func (m *Memory) Capacity() int {
	return cap(m.entries)
}

// Log records entry, evicting the oldest one when full.
func (m *Memory) Log(entry *Entry) {
	if entry == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full {
		m.entries = append(m.entries, entry)
		if len(m.entries) == cap(m.entries) {
			m.full = true
			m.next = 0
		}
		return
	}
	m.entries[m.next] = entry
	m.next = (m.next + 1) % len(m.entries)
}

// Get returns the entry with the given ID, or nil if it was never logged
// or has been evicted.
func (m *Memory) Get(id string) *Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// List returns matching entries newest first.
func (m *Memory) List(filter *Filter) []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Entry, 0, len(m.entries))
	skipped := 0
	for i := range m.entries {
		e := m.at(len(m.entries) - 1 - i)
		if filter != nil {
			if !filter.matches(e) {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}
			if filter.Limit > 0 && len(result) >= filter.Limit {
				break
			}
		}
		result = append(result, e)
	}
	return result
}

// at returns the i-th oldest entry. Callers hold mu.
func (m *Memory) at(i int) *Entry {
	if !m.full {
		return m.entries[i]
	}
	return m.entries[(m.next+i)%len(m.entries)]
}

// Count returns the number of stored entries.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Clear removes all entries.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = m.entries[:0]
	m.next = 0
	m.full = false
}

func (f *Filter) matches(e *Entry) bool {
	if f.Method != "" && e.Method != f.Method {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if f.Path != "" {
		ok, err := doublestar.Match(f.Path, e.Path)
		if err != nil || !ok {
			return false
		}
	}
	return true
}
