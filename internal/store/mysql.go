// mysql.go - MySQL store.

package store

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"medproof/internal/apperr"
)

const mysqlDuplicateEntry = 1062

// MySQLStore keeps records in two tables created on first connect.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore connects with dsn and initialises the schema.
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "mysql dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, storageFailure(err, "open mysql")
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)
	return newMySQLStore(ctx, db)
}

// newMySQLStore checks the connection and initialises the schema on an open handle. The
// handle is closed on failure.
func newMySQLStore(ctx context.Context, db *sql.DB) (*MySQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storageFailure(err, "connect to mysql")
	}
	s := &MySQLStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) initSchema(ctx context.Context) error {
	const studies = `CREATE TABLE IF NOT EXISTS medproof_studies (
        commitment CHAR(64) PRIMARY KEY,
        id VARCHAR(64) NOT NULL,
        protocol MEDIUMTEXT NOT NULL,
        created_at BIGINT NOT NULL
)`
	const proofs = `CREATE TABLE IF NOT EXISTS medproof_proofs (
        id VARCHAR(64) PRIMARY KEY,
        proof_hash CHAR(64) NOT NULL,
        study_commitment CHAR(64) NOT NULL DEFAULT '',
        method VARCHAR(32) NOT NULL,
        proof MEDIUMTEXT NOT NULL,
        created_at BIGINT NOT NULL,
        UNIQUE KEY uniq_proof_hash (proof_hash),
        INDEX idx_study_created (study_commitment, created_at)
)`
	for _, stmt := range []string{studies, proofs} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storageFailure(err, "initialise schema")
		}
	}
	return nil
}

func (s *MySQLStore) SaveStudy(ctx context.Context, rec StudyRecord) error {
	if err := validateStudy(rec); err != nil {
		return err
	}
	const stmt = `INSERT INTO medproof_studies (commitment, id, protocol, created_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, rec.Commitment, rec.ID, string(rec.Protocol), rec.CreatedAt.UnixNano())
	return insertError(err, "insert study")
}

func (s *MySQLStore) GetStudy(ctx context.Context, commitment string) (*StudyRecord, error) {
	const stmt = `SELECT commitment, id, protocol, created_at FROM medproof_studies WHERE commitment = ?`
	var (
		rec      StudyRecord
		protocol string
		created  int64
	)
	err := s.db.QueryRowContext(ctx, stmt, commitment).Scan(&rec.Commitment, &rec.ID, &protocol, &created)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageFailure(err, "query study")
	}
	rec.Protocol = []byte(protocol)
	rec.CreatedAt = time.Unix(0, created).UTC()
	return &rec, nil
}

func (s *MySQLStore) SaveProof(ctx context.Context, rec ProofRecord) error {
	if err := validateProof(rec); err != nil {
		return err
	}
	const stmt = `INSERT INTO medproof_proofs (id, proof_hash, study_commitment, method, proof, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, rec.ID, rec.ProofHash, rec.StudyCommitment, rec.Method, string(rec.Proof), rec.CreatedAt.UnixNano())
	return insertError(err, "insert proof")
}

const proofColumns = `id, proof_hash, study_commitment, method, proof, created_at`

func (s *MySQLStore) GetProof(ctx context.Context, id string) (*ProofRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+proofColumns+` FROM medproof_proofs WHERE id = ?`, id)
	rec, err := scanProof(row)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageFailure(err, "query proof")
	}
	return rec, nil
}

func (s *MySQLStore) ListProofs(ctx context.Context, studyCommitment string) ([]ProofRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+proofColumns+` FROM medproof_proofs WHERE study_commitment = ? ORDER BY created_at, id`, studyCommitment)
	if err != nil {
		return nil, storageFailure(err, "query proofs")
	}
	defer rows.Close()

	var out []ProofRecord
	for rows.Next() {
		rec, err := scanProof(rows)
		if err != nil {
			return nil, storageFailure(err, "scan proof")
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageFailure(err, "iterate proofs")
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProof(row scanner) (*ProofRecord, error) {
	var (
		rec     ProofRecord
		proof   string
		created int64
	)
	if err := row.Scan(&rec.ID, &rec.ProofHash, &rec.StudyCommitment, &rec.Method, &proof, &created); err != nil {
		return nil, err
	}
	rec.Proof = []byte(proof)
	rec.CreatedAt = time.Unix(0, created).UTC()
	return &rec, nil
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageFailure(err, "mysql unavailable")
	}
	return nil
}

func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func insertError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return ErrConflict
	}
	return storageFailure(err, msg)
}
