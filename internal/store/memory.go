// memory.go - In-process store backed by mutex-guarded maps.

package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps records in memory. Intended for tests and single-process demos.
type MemoryStore struct {
	mu          sync.RWMutex
	studies     map[string]StudyRecord
	proofs      map[string]ProofRecord
	proofHashes map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		studies:     make(map[string]StudyRecord),
		proofs:      make(map[string]ProofRecord),
		proofHashes: make(map[string]string),
	}
}

func (s *MemoryStore) SaveStudy(_ context.Context, rec StudyRecord) error {
	if err := validateStudy(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.studies[rec.Commitment]; ok {
		return ErrConflict
	}
	s.studies[rec.Commitment] = rec
	return nil
}

func (s *MemoryStore) GetStudy(_ context.Context, commitment string) (*StudyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.studies[commitment]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) SaveProof(_ context.Context, rec ProofRecord) error {
	if err := validateProof(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proofs[rec.ID]; ok {
		return ErrConflict
	}
	if _, ok := s.proofHashes[rec.ProofHash]; ok {
		return ErrConflict
	}
	s.proofs[rec.ID] = rec
	s.proofHashes[rec.ProofHash] = rec.ID
	return nil
}

func (s *MemoryStore) GetProof(_ context.Context, id string) (*ProofRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.proofs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) ListProofs(_ context.Context, studyCommitment string) ([]ProofRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ProofRecord
	for _, rec := range s.proofs {
		if rec.StudyCommitment == studyCommitment {
			out = append(out, rec)
		}
	}
	sortProofs(out)
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func sortProofs(recs []ProofRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}
