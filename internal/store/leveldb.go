// leveldb.go - LevelDB store.
//
// Key layout:
//   - study_<commitment>                          => StudyRecord JSON
//   - proof_<id>                                  => ProofRecord JSON
//   - proofhash_<proofHash>                       => id
//   - studyproof_<commitment>_<unixNano>_<id>     => id (per-study index, ordered by time)

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore persists records in an embedded LevelDB database.
type LevelDBStore struct {
	// mu serializes writes so existence checks and batches are atomic together.
	mu sync.Mutex
	db *leveldb.DB
}

// OpenLevelDB opens or creates the database at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	if path == "" {
		return nil, fmt.Errorf("leveldb path is required")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, storageFailure(err, "open leveldb")
	}
	return &LevelDBStore{db: db}, nil
}

func studyKey(cm string) []byte         { return []byte("study_" + cm) }
func proofKey(id string) []byte         { return []byte("proof_" + id) }
func proofHashKey(hash string) []byte   { return []byte("proofhash_" + hash) }
func studyProofPrefix(cm string) []byte { return []byte("studyproof_" + cm + "_") }
func studyProofKey(rec ProofRecord) []byte {
	return []byte(fmt.Sprintf("studyproof_%s_%020d_%s", rec.StudyCommitment, rec.CreatedAt.UnixNano(), rec.ID))
}

func (s *LevelDBStore) SaveStudy(_ context.Context, rec StudyRecord) error {
	if err := validateStudy(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return storageFailure(err, "encode study")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.db.Has(studyKey(rec.Commitment), nil)
	if err != nil {
		return storageFailure(err, "read study")
	}
	if exists {
		return ErrConflict
	}
	if err := s.db.Put(studyKey(rec.Commitment), data, nil); err != nil {
		return storageFailure(err, "write study")
	}
	return nil
}

func (s *LevelDBStore) GetStudy(_ context.Context, commitment string) (*StudyRecord, error) {
	var rec StudyRecord
	if err := s.getJSON(studyKey(commitment), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *LevelDBStore) SaveProof(_ context.Context, rec ProofRecord) error {
	if err := validateProof(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return storageFailure(err, "encode proof")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range [][]byte{proofKey(rec.ID), proofHashKey(rec.ProofHash)} {
		exists, err := s.db.Has(k, nil)
		if err != nil {
			return storageFailure(err, "read proof")
		}
		if exists {
			return ErrConflict
		}
	}

	batch := new(leveldb.Batch)
	batch.Put(proofKey(rec.ID), data)
	batch.Put(proofHashKey(rec.ProofHash), []byte(rec.ID))
	if rec.StudyCommitment != "" {
		batch.Put(studyProofKey(rec), []byte(rec.ID))
	}
	if err := s.db.Write(batch, nil); err != nil {
		return storageFailure(err, "write proof")
	}
	return nil
}

func (s *LevelDBStore) GetProof(_ context.Context, id string) (*ProofRecord, error) {
	var rec ProofRecord
	if err := s.getJSON(proofKey(id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *LevelDBStore) ListProofs(ctx context.Context, studyCommitment string) ([]ProofRecord, error) {
	iter := s.db.NewIterator(util.BytesPrefix(studyProofPrefix(studyCommitment)), nil)
	defer iter.Release()

	var out []ProofRecord
	for iter.Next() {
		rec, err := s.GetProof(ctx, string(iter.Value()))
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := iter.Error(); err != nil {
		return nil, storageFailure(err, "iterate proofs")
	}
	return out, nil
}

func (s *LevelDBStore) Ping(context.Context) error {
	if _, err := s.db.GetProperty("leveldb.stats"); err != nil {
		return storageFailure(err, "leveldb unavailable")
	}
	return nil
}

func (s *LevelDBStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *LevelDBStore) getJSON(key []byte, dst any) error {
	data, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storageFailure(err, "read record")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return storageFailure(err, "decode record")
	}
	return nil
}
