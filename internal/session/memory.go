package session

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and single-node demo deployments.
type MemStore struct {
	mx    *sync.Mutex
	byID  map[string]*Session
	codes map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx:    &sync.Mutex{},
		byID:  make(map[string]*Session),
		codes: make(map[string]string),
	}
}

func (ms *MemStore) Create(_ context.Context, s *Session) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if existing, ok := ms.byID[s.ID]; ok && existing.Status != StatusEnded {
		return ErrExists
	}
	cp := *s
	ms.byID[s.ID] = &cp
	if s.Code != "" {
		ms.codes[s.Code] = s.ID
	}
	return nil
}

func (ms *MemStore) Get(_ context.Context, idOrCode string) (*Session, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	id := idOrCode
	if mapped, ok := ms.codes[idOrCode]; ok {
		id = mapped
	}
	s, ok := ms.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (ms *MemStore) SetStatus(_ context.Context, id, status string) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	s, ok := ms.byID[id]
	if !ok {
		return ErrNotFound
	}
	if s.Status == StatusEnded {
		return ErrEnded
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return nil
}

func (ms *MemStore) List(_ context.Context) ([]*Session, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	out := make([]*Session, 0, len(ms.byID))
	for _, s := range ms.byID {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}
