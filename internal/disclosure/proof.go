// proof.go - Proof wire types and structural checks.

package disclosure

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

const (
	ProtocolGroth16 = "groth16"
	CurveBN128      = "bn128"
)

// Public signal positions.
const (
	SignalMinPatients = iota
	SignalMinEfficacy
	SignalMaxPValueScaled
	SignalDataCommitment
	SignalValidSampleSize
	SignalValidEfficacy
	SignalValidSignificance
	SignalOverallValid

	NumPublicSignals = 8
)

// ProofBlob has the snarkjs Groth16 shape: projective G1 triples for pi_a and pi_c and a
// G2 triple of Fp2 pairs for pi_b, all decimal strings.
type ProofBlob struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve"`
}

// Metadata is derived, prover-supplied context. The verifier cross-checks it against the
// public signals and never trusts it on its own.
type Metadata struct {
	StudyType             string     `json:"studyType"`
	EfficacyRate          int64      `json:"efficacyRate"`
	SampleSize            int64      `json:"sampleSize"`
	PValue                float64    `json:"pValue"`
	Timestamp             time.Time  `json:"timestamp"`
	ProofHash             string     `json:"proofHash"`
	Verified              bool       `json:"verified"`
	VerificationTimestamp *time.Time `json:"verificationTimestamp,omitempty"`
}

// Proof is immutable once returned by a generator.
type Proof struct {
	Blob          ProofBlob `json:"proof"`
	PublicSignals []string  `json:"publicSignals"`
	Metadata      Metadata  `json:"metadata"`
}

// VerificationResult is the outcome of Verify. A failed verification is data, not an error.
type VerificationResult struct {
	Valid     bool      `json:"valid"`
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Error     string    `json:"error,omitempty"`
}

// publicSignals renders the statement in wire order.
func publicSignals(t Thresholds, dataCommitment *big.Int, p Predicates) []string {
	return []string{
		strconv.FormatInt(t.MinPatients, 10),
		strconv.FormatInt(t.MinEfficacyRatePercent, 10),
		strconv.FormatInt(t.MaxPValueScaled, 10),
		dataCommitment.String(),
		flag(p.ValidSampleSize),
		flag(p.ValidEfficacy),
		flag(p.ValidSignificance),
		flag(p.OverallValid),
	}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// statement is the decoded public-signal tuple.
type statement struct {
	Thresholds     Thresholds
	DataCommitment *big.Int
	Flags          Predicates
}

// checkStructure validates the blob shape and decodes the public signals.
func checkStructure(p *Proof) (*statement, error) {
	if p == nil {
		return nil, fmt.Errorf("proof is nil")
	}
	b := p.Blob
	if b.Protocol != ProtocolGroth16 {
		return nil, fmt.Errorf("unsupported protocol %q", b.Protocol)
	}
	if b.Curve != CurveBN128 {
		return nil, fmt.Errorf("unsupported curve %q", b.Curve)
	}
	if err := checkG1Triple("pi_a", b.PiA); err != nil {
		return nil, err
	}
	if err := checkG1Triple("pi_c", b.PiC); err != nil {
		return nil, err
	}
	if err := checkG2Triple(b.PiB); err != nil {
		return nil, err
	}

	if len(p.PublicSignals) != NumPublicSignals {
		return nil, fmt.Errorf("expected %d public signals, got %d", NumPublicSignals, len(p.PublicSignals))
	}
	values := make([]*big.Int, NumPublicSignals)
	for i, s := range p.PublicSignals {
		v, ok := parseDecimal(s)
		if !ok {
			return nil, fmt.Errorf("public signal %d is not a decimal integer", i)
		}
		if v.Cmp(fr.Modulus()) >= 0 {
			return nil, fmt.Errorf("public signal %d is not a field element", i)
		}
		values[i] = v
	}

	st := &statement{DataCommitment: values[SignalDataCommitment]}
	thresholds := []*int64{&st.Thresholds.MinPatients, &st.Thresholds.MinEfficacyRatePercent, &st.Thresholds.MaxPValueScaled}
	for i, dst := range thresholds {
		if !values[i].IsInt64() {
			return nil, fmt.Errorf("public signal %d is out of range", i)
		}
		*dst = values[i].Int64()
	}
	if err := st.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("thresholds: %w", err)
	}
	flags := []*bool{&st.Flags.ValidSampleSize, &st.Flags.ValidEfficacy, &st.Flags.ValidSignificance, &st.Flags.OverallValid}
	for i, dst := range flags {
		v := values[SignalValidSampleSize+i]
		if !v.IsInt64() || (v.Int64() != 0 && v.Int64() != 1) {
			return nil, fmt.Errorf("public signal %d must be 0 or 1", SignalValidSampleSize+i)
		}
		*dst = v.Int64() == 1
	}
	return st, nil
}

func checkG1Triple(name string, v []string) error {
	if len(v) != 3 {
		return fmt.Errorf("%s must have 3 elements, got %d", name, len(v))
	}
	for i, s := range v[:2] {
		if _, ok := parseDecimal(s); !ok {
			return fmt.Errorf("%s[%d] is not a decimal integer", name, i)
		}
	}
	if v[2] != "1" {
		return fmt.Errorf("%s must be in affine form", name)
	}
	return nil
}

func checkG2Triple(v [][]string) error {
	if len(v) != 3 {
		return fmt.Errorf("pi_b must have 3 elements, got %d", len(v))
	}
	for i, pair := range v {
		if len(pair) != 2 {
			return fmt.Errorf("pi_b[%d] must be a pair", i)
		}
		for j, s := range pair {
			if _, ok := parseDecimal(s); !ok {
				return fmt.Errorf("pi_b[%d][%d] is not a decimal integer", i, j)
			}
		}
	}
	if v[2][0] != "1" || v[2][1] != "0" {
		return fmt.Errorf("pi_b must be in affine form")
	}
	return nil
}

// parseDecimal accepts non-negative base-10 integers without sign or leading zeros.
func parseDecimal(s string) (*big.Int, bool) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return nil, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, false
		}
	}
	return new(big.Int).SetString(s, 10)
}
