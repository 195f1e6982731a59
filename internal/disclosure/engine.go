// engine.go - Proof generation and verification shared by every backend.

package disclosure

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"medproof/internal/apperr"
)

// Prover produces disclosure proofs.
type Prover interface {
	GenerateProof(stats MedicalStats, salt *Salt, thresholds Thresholds) (*Proof, error)
}

// Verifier checks disclosure proofs without access to private inputs.
type Verifier interface {
	Verify(p *Proof) VerificationResult
}

// backend is the cryptographic part that differs between placeholder and Groth16.
type backend interface {
	method() string
	commit(in commitmentInputs) *big.Int
	prove(in commitmentInputs, signals []string) (ProofBlob, error)
	check(p *Proof, st *statement) error
}

// Engine implements Prover and Verifier over one backend. Safe for concurrent use.
type Engine struct {
	backend    backend
	studyType  string
	now        func() time.Time
	strictArms bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithStudyType sets Metadata.StudyType on generated proofs.
func WithStudyType(t string) Option {
	return func(e *Engine) { e.studyType = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStrictArms makes generation require treatmentSuccess <= patientCount - controlCount.
func WithStrictArms(strict bool) Option {
	return func(e *Engine) { e.strictArms = strict }
}

// DefaultStudyType is used when no study type is configured.
const DefaultStudyType = "treatment-efficacy"

func newEngine(b backend, opts ...Option) *Engine {
	e := &Engine{
		backend:   b,
		studyType: DefaultStudyType,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Method names the verification method, e.g. "placeholder-sha256".
func (e *Engine) Method() string { return e.backend.method() }

// GenerateProof builds a proof over stats with a fresh salt.
// Steps:
//  1. Validate thresholds and stats
//  2. Consume the salt
//  3. Compute the DataCommitment and evaluate the predicates
//  4. Produce the blob and the proof hash
//  5. Self-verify and record the outcome in the metadata
func (e *Engine) GenerateProof(stats MedicalStats, salt *Salt, thresholds Thresholds) (*Proof, error) {
	// Step 1: Validate inputs at the boundary
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	validate := stats.Validate
	if e.strictArms {
		validate = stats.ValidateArms
	}
	if err := validate(); err != nil {
		return nil, err
	}

	// Step 2: A salt binds exactly one proof
	s, err := salt.consume()
	if err != nil {
		return nil, err
	}

	// Step 3: Commitment and predicates
	in := newCommitmentInputs(stats, s)
	dataCommitment := e.backend.commit(in)
	preds := evaluate(in.PatientCount, in.TreatmentSuccess, in.PValueScaled, thresholds)
	signals := publicSignals(thresholds, dataCommitment, preds)

	// Step 4: Blob and hash
	blob, err := e.backend.prove(in, signals)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProverFailure, err, "")
	}
	hash, err := proofHash(blob)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "proof hash failed")
	}
	proof := &Proof{
		Blob:          blob,
		PublicSignals: signals,
		Metadata: Metadata{
			StudyType:    e.studyType,
			EfficacyRate: EfficacyPercent(stats.TreatmentSuccess, stats.PatientCount),
			SampleSize:   stats.PatientCount,
			PValue:       stats.PValue,
			Timestamp:    e.now(),
			ProofHash:    hash,
		},
	}

	// Step 5: Self-verification
	res := e.Verify(proof)
	proof.Metadata.Verified = res.Valid
	ts := res.Timestamp
	proof.Metadata.VerificationTimestamp = &ts
	return proof, nil
}

// Verify runs the structural, flag, metadata and backend checks in that order. It never
// panics and never returns an error; failures are reported in the result.
func (e *Engine) Verify(p *Proof) (res VerificationResult) {
	res = VerificationResult{Timestamp: e.now(), Method: e.backend.method()}
	defer func() {
		if r := recover(); r != nil {
			res.Valid = false
			res.Error = fmt.Sprintf("verification aborted: %v", r)
		}
	}()

	st, err := checkStructure(p)
	if err != nil {
		res.Error = "malformed proof: " + err.Error()
		return res
	}
	if err := checkFlags(st.Flags); err != nil {
		res.Error = err.Error()
		return res
	}
	if err := checkMetadata(p.Metadata, st); err != nil {
		res.Error = "metadata inconsistent with public signals: " + err.Error()
		return res
	}
	if err := e.backend.check(p, st); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Valid = true
	return res
}

// checkFlags enforces overallValid == validSampleSize AND validEfficacy AND validSignificance.
func checkFlags(f Predicates) error {
	want := f.ValidSampleSize && f.ValidEfficacy && f.ValidSignificance
	if f.OverallValid != want {
		return fmt.Errorf("overallValid flag %s does not match the predicate flags", flag(f.OverallValid))
	}
	return nil
}

// checkMetadata re-derives each predicate from the metadata and requires agreement with the
// corresponding public flag.
func checkMetadata(m Metadata, st *statement) error {
	t := st.Thresholds
	if m.SampleSize < 0 || m.EfficacyRate < 0 {
		return fmt.Errorf("negative sampleSize or efficacyRate")
	}
	if m.EfficacyRate > 100 {
		return fmt.Errorf("efficacyRate %d exceeds 100 percent", m.EfficacyRate)
	}
	if math.IsNaN(m.PValue) || m.PValue < 0 || m.PValue > 1 {
		return fmt.Errorf("pValue outside [0, 1]")
	}
	sample := m.SampleSize >= t.MinPatients
	if sample != st.Flags.ValidSampleSize {
		return fmt.Errorf("sampleSize %d disagrees with validSampleSize", m.SampleSize)
	}
	efficacy := m.EfficacyRate >= t.MinEfficacyRatePercent
	if efficacy != st.Flags.ValidEfficacy {
		return fmt.Errorf("efficacyRate %d disagrees with validEfficacy", m.EfficacyRate)
	}
	significance := PValueScaled(m.PValue) < t.MaxPValueScaled
	if significance != st.Flags.ValidSignificance {
		return fmt.Errorf("pValue %g disagrees with validSignificance", m.PValue)
	}
	meetsThreshold := efficacy && sample
	if (meetsThreshold && significance) != st.Flags.OverallValid {
		return fmt.Errorf("threshold outcome disagrees with overallValid")
	}
	return nil
}
