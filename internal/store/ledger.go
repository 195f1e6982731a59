// ledger.go - Persistent, append-only JSON ledger of study commitments and proofs.
//
// The Ledger records every committed study and every generated proof. It is append-only,
// rejects duplicate commitments, ids and proof hashes, and is persisted as a single JSON file
// rewritten atomically after each append.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Ledger is the append-only file-backed store.
type Ledger struct {
	mu   sync.RWMutex
	path string

	Studies []StudyRecord `json:"studies"`
	Proofs  []ProofRecord `json:"proofs"`
}

// NewLedger creates an empty ledger that persists to path.
func NewLedger(path string) *Ledger {
	return &Ledger{
		path:    path,
		Studies: make([]StudyRecord, 0),
		Proofs:  make([]ProofRecord, 0),
	}
}

// OpenLedger loads the ledger at path, or starts an empty one if the file does not exist.
func OpenLedger(path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	l, err := LoadLedgerFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewLedger(path), nil
	}
	if err != nil {
		return nil, storageFailure(err, "load ledger")
	}
	return l, nil
}

// AppendStudy appends a study. It fails if the commitment is already recorded.
func (l *Ledger) AppendStudy(rec StudyRecord) error {
	if err := validateStudy(rec); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hasCommitment(rec.Commitment) {
		return ErrConflict
	}
	l.Studies = append(l.Studies, rec)
	if err := l.saveLocked(); err != nil {
		l.Studies = l.Studies[:len(l.Studies)-1]
		return err
	}
	return nil
}

// AppendProof appends a proof. It fails if the id or the proof hash is already recorded.
func (l *Ledger) AppendProof(rec ProofRecord) error {
	if err := validateProof(rec); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hasProof(rec.ID, rec.ProofHash) {
		return ErrConflict
	}
	l.Proofs = append(l.Proofs, rec)
	if err := l.saveLocked(); err != nil {
		l.Proofs = l.Proofs[:len(l.Proofs)-1]
		return err
	}
	return nil
}

// HasCommitment returns true if the study commitment is already in the ledger.
func (l *Ledger) HasCommitment(cm string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hasCommitment(cm)
}

// HasProofHash returns true if a proof with this hash is already in the ledger.
func (l *Ledger) HasProofHash(hash string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hasProof("", hash)
}

func (l *Ledger) hasCommitment(cm string) bool {
	for _, s := range l.Studies {
		if s.Commitment == cm {
			return true
		}
	}
	return false
}

func (l *Ledger) hasProof(id, hash string) bool {
	for _, p := range l.Proofs {
		if (id != "" && p.ID == id) || p.ProofHash == hash {
			return true
		}
	}
	return false
}

func (l *Ledger) SaveStudy(_ context.Context, rec StudyRecord) error { return l.AppendStudy(rec) }

func (l *Ledger) GetStudy(_ context.Context, commitment string) (*StudyRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.Studies {
		if s.Commitment == commitment {
			rec := s
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

func (l *Ledger) SaveProof(_ context.Context, rec ProofRecord) error { return l.AppendProof(rec) }

func (l *Ledger) GetProof(_ context.Context, id string) (*ProofRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.Proofs {
		if p.ID == id {
			rec := p
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

func (l *Ledger) ListProofs(_ context.Context, studyCommitment string) ([]ProofRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []ProofRecord
	for _, p := range l.Proofs {
		if p.StudyCommitment == studyCommitment {
			out = append(out, p)
		}
	}
	sortProofs(out)
	return out, nil
}

func (l *Ledger) Ping(context.Context) error {
	dir := filepath.Dir(l.path)
	if _, err := os.Stat(dir); err != nil {
		return storageFailure(err, "ledger directory unavailable")
	}
	return nil
}

func (l *Ledger) Close() error { return nil }

// SaveToFile writes the ledger to path through a temporary file and a rename.
func (l *Ledger) SaveToFile(path string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return writeLedger(l, path)
}

func (l *Ledger) saveLocked() error {
	if err := writeLedger(l, l.path); err != nil {
		return storageFailure(err, "persist ledger")
	}
	return nil
}

func writeLedger(l *Ledger, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ledger-*.json")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadLedgerFromFile loads a ledger from a JSON file.
// Returns an error if the file is invalid or cannot be read.
func LoadLedgerFromFile(path string) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	l := NewLedger(path)
	if err := json.NewDecoder(f).Decode(l); err != nil {
		return nil, err
	}
	return l, nil
}
