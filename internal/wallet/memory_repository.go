package wallet

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.RWMutex
	byID     map[string]Wallet
	byDevice map[string]string
}

// NewMemoryStore constructs an in-memory store for development and tests.
func NewMemoryStore() Store {
	return &memoryStore{
		byID:     make(map[string]Wallet),
		byDevice: make(map[string]string),
	}
}

func (s *memoryStore) FindByDeviceID(_ context.Context, deviceID string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDevice[deviceID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return cloneWallet(s.byID[id]), nil
}

func (s *memoryStore) FindByID(_ context.Context, walletID string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.byID[walletID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return cloneWallet(w), nil
}

func (s *memoryStore) Insert(_ context.Context, w Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byDevice[w.DeviceID]; exists {
		return ErrDuplicateDevice
	}
	if _, exists := s.byID[w.ID]; exists {
		return ErrStorage
	}
	s.byID[w.ID] = cloneWallet(w)
	s.byDevice[w.DeviceID] = w.ID
	return nil
}

func (s *memoryStore) TouchLastSeen(_ context.Context, walletID string, at time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.byID[walletID]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	at = at.UTC()
	if w.LastSeenAt == nil || at.After(*w.LastSeenAt) {
		w.LastSeenAt = &at
		s.byID[walletID] = w
	}
	return *w.LastSeenAt, nil
}

func (s *memoryStore) Ping(context.Context) error {
	return nil
}

func cloneWallet(w Wallet) Wallet {
	w.DeviceBoundAt = utcPtr(w.DeviceBoundAt)
	w.LastSeenAt = utcPtr(w.LastSeenAt)
	return w
}
