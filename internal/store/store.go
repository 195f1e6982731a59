// store.go - Persistence collaborators for study commitments and generated proofs.
//
// Records are opaque JSON payloads plus the index keys needed to look them up. Every driver
// reports missing records as ErrNotFound and duplicate keys as ErrConflict.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"medproof/internal/apperr"
)

var (
	ErrNotFound = apperr.New(apperr.CodeNotFound, "")
	ErrConflict = apperr.New(apperr.CodeConflict, "")
)

// StudyRecord stores a committed protocol under its StudyCommitment.
type StudyRecord struct {
	ID         string          `json:"studyId"`
	Commitment string          `json:"commitment"`
	Protocol   json.RawMessage `json:"protocol"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// ProofRecord stores a generated proof. StudyCommitment is empty for proofs not tied to a study.
type ProofRecord struct {
	ID              string          `json:"id"`
	StudyCommitment string          `json:"studyCommitment,omitempty"`
	ProofHash       string          `json:"proofHash"`
	Method          string          `json:"method"`
	Proof           json.RawMessage `json:"proof"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// CommitmentStore persists study commitments.
type CommitmentStore interface {
	SaveStudy(ctx context.Context, rec StudyRecord) error
	GetStudy(ctx context.Context, commitment string) (*StudyRecord, error)
}

// ProofStore persists proofs.
type ProofStore interface {
	SaveProof(ctx context.Context, rec ProofRecord) error
	GetProof(ctx context.Context, id string) (*ProofRecord, error)
	// ListProofs returns the proofs of a study, oldest first.
	ListProofs(ctx context.Context, studyCommitment string) ([]ProofRecord, error)
}

// Store is implemented by every driver.
type Store interface {
	CommitmentStore
	ProofStore
	Ping(ctx context.Context) error
	Close() error
}

// Driver names.
const (
	DriverMemory  = "memory"
	DriverLedger  = "ledger"
	DriverLevelDB = "leveldb"
	DriverRedis   = "redis"
	DriverMySQL   = "mysql"
)

// RedisConfig holds the Redis connection parameters.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Config selects and configures a driver.
type Config struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	DSN    string      `yaml:"dsn"`
	Redis  RedisConfig `yaml:"redis"`
}

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMemory:
		s = NewMemoryStore()
	case DriverLedger:
		s, err = asStore(OpenLedger(cfg.Path))
	case DriverLevelDB:
		s, err = asStore(OpenLevelDB(cfg.Path))
	case DriverRedis:
		s, err = asStore(NewRedisStore(ctx, cfg.Redis))
	case DriverMySQL:
		s, err = asStore(NewMySQLStore(ctx, cfg.DSN))
	default:
		return nil, apperr.New(apperr.CodeInvalidArgument, fmt.Sprintf("unknown storage driver %q", cfg.Driver))
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// asStore keeps a nil driver pointer from becoming a non-nil Store.
func asStore[S Store](s S, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

func validateStudy(rec StudyRecord) error {
	if rec.ID == "" || rec.Commitment == "" {
		return apperr.New(apperr.CodeInvalidArgument, "study record requires id and commitment")
	}
	return nil
}

func validateProof(rec ProofRecord) error {
	if rec.ID == "" || rec.ProofHash == "" {
		return apperr.New(apperr.CodeInvalidArgument, "proof record requires id and proofHash")
	}
	return nil
}

func storageFailure(err error, msg string) error {
	return apperr.Wrap(apperr.CodeStorageFailure, err, msg)
}
