package utils

import (
	"sync"
)

// OptionalRWMutex is a read/write lock that does nothing unless it has been enabled. Heaps that
// are only ever driven from one goroutine pay no locking cost.
type OptionalRWMutex struct {
	mutex   sync.RWMutex
	enabled bool
}

// Enable turns on locking. It must be called before the lock is shared between goroutines.
func (m *OptionalRWMutex) Enable(enabled bool) {
	m.enabled = enabled
}

func (m *OptionalRWMutex) Enabled() bool {
	return m.enabled
}

func (m *OptionalRWMutex) Lock() {
	if m.enabled {
		m.mutex.Lock()
	}
}

func (m *OptionalRWMutex) Unlock() {
	if m.enabled {
		m.mutex.Unlock()
	}
}

func (m *OptionalRWMutex) RLock() {
	if m.enabled {
		m.mutex.RLock()
	}
}

func (m *OptionalRWMutex) RUnlock() {
	if m.enabled {
		m.mutex.RUnlock()
	}
}
