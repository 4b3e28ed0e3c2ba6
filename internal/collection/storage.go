package collection

import (
	"log"
	"sync"
)

// Storage is a durable string key/value medium, shaped like a browser's
// localStorage.
type Storage interface {
	// GetItem returns the stored value and whether the key exists.
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
	Clear() error
}

// MemoryStorage keeps items in a map. Nothing survives the process.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

func (m *MemoryStorage) GetItem(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.items[key]
	return value, ok, nil
}

func (m *MemoryStorage) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MemoryStorage) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]string)
	return nil
}

// SafeStorage wraps a durable Storage and never returns its errors. After the
// first failure it logs once and serves the rest of the session from an
// in-memory overlay; keys never written to the overlay are still read from the
// durable medium on a best-effort basis.
type SafeStorage struct {
	durable Storage
	logger  *log.Logger

	mu       sync.Mutex
	degraded bool
	cleared  bool
	overlay  map[string]*string
}

func NewSafeStorage(durable Storage, logger *log.Logger) *SafeStorage {
	if logger == nil {
		logger = log.Default()
	}
	return &SafeStorage{durable: durable, logger: logger}
}

// Degraded reports whether the session has fallen back to memory.
func (s *SafeStorage) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *SafeStorage) GetItem(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		if value, ok := s.overlay[key]; ok {
			if value == nil {
				return "", false, nil
			}
			return *value, true, nil
		}
		if s.cleared {
			return "", false, nil
		}
		value, ok, err := s.durable.GetItem(key)
		if err != nil {
			return "", false, nil
		}
		return value, ok, nil
	}
	value, ok, err := s.durable.GetItem(key)
	if err != nil {
		s.degrade(err)
		return "", false, nil
	}
	return value, ok, nil
}

func (s *SafeStorage) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.degraded {
		err := s.durable.SetItem(key, value)
		if err == nil {
			return nil
		}
		s.degrade(err)
	}
	s.overlay[key] = &value
	return nil
}

func (s *SafeStorage) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.degraded {
		err := s.durable.RemoveItem(key)
		if err == nil {
			return nil
		}
		s.degrade(err)
	}
	s.overlay[key] = nil
	return nil
}

func (s *SafeStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.degraded {
		err := s.durable.Clear()
		if err == nil {
			return nil
		}
		s.degrade(err)
	}
	s.overlay = make(map[string]*string)
	s.cleared = true
	return nil
}

func (s *SafeStorage) degrade(err error) {
	s.degraded = true
	s.overlay = make(map[string]*string)
	s.logger.Printf("collection: durable storage unavailable, continuing in memory: %v", err)
}
