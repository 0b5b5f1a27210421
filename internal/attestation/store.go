package attestation

import (
	"context"
	"sort"
	"sync"

	id "veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
)

// Store persists issued attestations. The engine is the sole writer;
// consumers only read.
type Store interface {
	Insert(ctx context.Context, record *Attestation) error
	Update(ctx context.Context, record *Attestation) error
	FindByID(ctx context.Context, attID id.AttestationID) (*Attestation, error)
	FindByUID(ctx context.Context, uid id.AttestationUID) (*Attestation, error)
	ListByRecipient(ctx context.Context, recipient id.Address) ([]*Attestation, error)
}

// MemoryStore keeps attestations in process. Suitable for tests and
// single-node deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[id.AttestationID]*Attestation
	byUID map[id.AttestationUID]id.AttestationID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[id.AttestationID]*Attestation),
		byUID: make(map[id.AttestationUID]id.AttestationID),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, record *Attestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[record.ID]; exists {
		return sentinel.ErrConflict
	}
	s.put(record)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, record *Attestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[record.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.put(record)
	return nil
}

func (s *MemoryStore) put(record *Attestation) {
	clone := *record
	s.byID[record.ID] = &clone
	if record.UID != "" {
		s.byUID[record.UID] = record.ID
	}
}

func (s *MemoryStore) FindByID(ctx context.Context, attID id.AttestationID) (*Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byID[attID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryStore) FindByUID(ctx context.Context, uid id.AttestationUID) (*Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attID, ok := s.byUID[uid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	record := s.byID[attID]
	clone := *record
	return &clone, nil
}

func (s *MemoryStore) ListByRecipient(ctx context.Context, recipient id.Address) ([]*Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Attestation
	for _, record := range s.byID {
		if record.Recipient == recipient {
			clone := *record
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
