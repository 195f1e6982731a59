// groth16.go - Groth16 backend: witness construction, proving, and conversion between gnark
// proofs and the snarkjs-style pi_a/pi_b/pi_c encoding.

package disclosure

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
)

// MethodGroth16 identifies the Groth16 backend in VerificationResult.Method.
const MethodGroth16 = "groth16-bn254"

// ErrNoProvingKey is returned when a verify-only engine is asked to prove.
var ErrNoProvingKey = errors.New("proving key not loaded")

type groth16Backend struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// NewGroth16 returns an Engine on the Groth16 backend. keys.ProvingKey and keys.CCS may be nil
// for a verify-only engine.
func NewGroth16(keys *Keys, opts ...Option) (*Engine, error) {
	if keys == nil || keys.VerifyingKey == nil {
		return nil, errors.New("groth16: verifying key is required")
	}
	b := &groth16Backend{ccs: keys.CCS, pk: keys.ProvingKey, vk: keys.VerifyingKey}
	return newEngine(b, opts...), nil
}

func (*groth16Backend) method() string { return MethodGroth16 }

func (*groth16Backend) commit(in commitmentInputs) *big.Int {
	return mimcCommitment(in)
}

// prove builds the full witness and runs the Groth16 prover.
func (b *groth16Backend) prove(in commitmentInputs, signals []string) (ProofBlob, error) {
	if b.pk == nil || b.ccs == nil {
		return ProofBlob{}, ErrNoProvingKey
	}
	assignment := publicAssignment(signals)
	assignment.PatientCount = in.PatientCount
	assignment.TreatmentSuccess = in.TreatmentSuccess
	assignment.ControlSuccess = in.ControlSuccess
	assignment.ControlCount = in.ControlCount
	assignment.PValueScaled = in.PValueScaled
	assignment.Salt = in.Salt.BigInt(new(big.Int))

	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return ProofBlob{}, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(b.ccs, b.pk, w)
	if err != nil {
		return ProofBlob{}, fmt.Errorf("proof generation failed: %w", err)
	}
	return exportProof(proof)
}

// check verifies the proof points against the verifying key with the public signals as the
// public witness.
func (b *groth16Backend) check(p *Proof, _ *statement) error {
	proof, err := importProof(p.Blob)
	if err != nil {
		return fmt.Errorf("malformed proof points: %w", err)
	}
	w, err := frontend.NewWitness(publicAssignment(p.PublicSignals), ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}
	if err := groth16.Verify(proof, b.vk, w); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	return checkProofHash(p)
}

func publicAssignment(signals []string) *DisclosureCircuit {
	return &DisclosureCircuit{
		MinPatients:            signals[SignalMinPatients],
		MinEfficacyRatePercent: signals[SignalMinEfficacy],
		MaxPValueScaled:        signals[SignalMaxPValueScaled],
		DataCommitment:         signals[SignalDataCommitment],
		ValidSampleSize:        signals[SignalValidSampleSize],
		ValidEfficacy:          signals[SignalValidEfficacy],
		ValidSignificance:      signals[SignalValidSignificance],
		OverallValid:           signals[SignalOverallValid],
	}
}

// exportProof writes Ar, Bs and Krs as affine decimal coordinates.
func exportProof(p groth16.Proof) (ProofBlob, error) {
	bp, ok := p.(*groth16_bn254.Proof)
	if !ok {
		return ProofBlob{}, fmt.Errorf("unexpected proof type %T", p)
	}
	if len(bp.Commitments) > 0 {
		return ProofBlob{}, errors.New("proofs with commitments cannot be exported")
	}
	return ProofBlob{
		PiA: []string{fpString(&bp.Ar.X), fpString(&bp.Ar.Y), "1"},
		PiB: [][]string{
			{fpString(&bp.Bs.X.A0), fpString(&bp.Bs.X.A1)},
			{fpString(&bp.Bs.Y.A0), fpString(&bp.Bs.Y.A1)},
			{"1", "0"},
		},
		PiC:      []string{fpString(&bp.Krs.X), fpString(&bp.Krs.Y), "1"},
		Protocol: ProtocolGroth16,
		Curve:    CurveBN128,
	}, nil
}

// importProof rebuilds a gnark proof and rejects coordinates that are not canonical field
// elements or points off the curve.
func importProof(b ProofBlob) (*groth16_bn254.Proof, error) {
	var p groth16_bn254.Proof
	var err error
	if p.Ar, err = g1FromStrings(b.PiA); err != nil {
		return nil, fmt.Errorf("pi_a: %w", err)
	}
	if p.Krs, err = g1FromStrings(b.PiC); err != nil {
		return nil, fmt.Errorf("pi_c: %w", err)
	}
	coords := make([]fp.Element, 4)
	for i, s := range []string{b.PiB[0][0], b.PiB[0][1], b.PiB[1][0], b.PiB[1][1]} {
		if err := setFp(&coords[i], s); err != nil {
			return nil, fmt.Errorf("pi_b: %w", err)
		}
	}
	p.Bs.X.A0, p.Bs.X.A1 = coords[0], coords[1]
	p.Bs.Y.A0, p.Bs.Y.A1 = coords[2], coords[3]
	if p.Bs.IsInfinity() || !p.Bs.IsOnCurve() || !p.Bs.IsInSubGroup() {
		return nil, errors.New("pi_b is not a valid G2 point")
	}
	return &p, nil
}

func g1FromStrings(v []string) (bn254.G1Affine, error) {
	var pt bn254.G1Affine
	if err := setFp(&pt.X, v[0]); err != nil {
		return pt, err
	}
	if err := setFp(&pt.Y, v[1]); err != nil {
		return pt, err
	}
	if pt.IsInfinity() || !pt.IsOnCurve() {
		return pt, errors.New("not a valid G1 point")
	}
	return pt, nil
}

func setFp(e *fp.Element, s string) error {
	n, ok := parseDecimal(s)
	if !ok || n.Cmp(fp.Modulus()) >= 0 {
		return fmt.Errorf("coordinate %q is not a base field element", s)
	}
	e.SetBigInt(n)
	return nil
}

func fpString(e *fp.Element) string {
	return e.BigInt(new(big.Int)).String()
}
