package disclosure

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/test"
)

func scenarioAssignment(t *testing.T, stats MedicalStats, th Thresholds) *DisclosureCircuit {
	t.Helper()
	salt := freshSalt(t)
	in := newCommitmentInputs(stats, salt.v)
	preds := evaluate(in.PatientCount, in.TreatmentSuccess, in.PValueScaled, th)
	a := publicAssignment(publicSignals(th, mimcCommitment(in), preds))
	a.PatientCount = in.PatientCount
	a.TreatmentSuccess = in.TreatmentSuccess
	a.ControlSuccess = in.ControlSuccess
	a.ControlCount = in.ControlCount
	a.PValueScaled = in.PValueScaled
	a.Salt = in.Salt.BigInt(new(big.Int))
	return a
}

func TestCircuitSolved(t *testing.T) {
	small := smallSampleStats
	insignificant := scenarioStats
	insignificant.PValue = 0.05

	for name, stats := range map[string]MedicalStats{
		"passing":       scenarioStats,
		"small sample":  small,
		"insignificant": insignificant,
	} {
		t.Run(name, func(t *testing.T) {
			a := scenarioAssignment(t, stats, DefaultThresholds())
			if err := test.IsSolved(&DisclosureCircuit{}, a, ecc.BN254.ScalarField()); err != nil {
				t.Fatalf("circuit not satisfied: %v", err)
			}
		})
	}
}

func TestCircuitRejectsWrongWitness(t *testing.T) {
	cases := map[string]func(a *DisclosureCircuit){
		"flipped overall flag":  func(a *DisclosureCircuit) { a.OverallValid = 0 },
		"flipped sample flag":   func(a *DisclosureCircuit) { a.ValidSampleSize = 0 },
		"different commitment":  func(a *DisclosureCircuit) { a.DataCommitment = 42 },
		"changed private count": func(a *DisclosureCircuit) { a.TreatmentSuccess = 1000 },
		"changed salt":          func(a *DisclosureCircuit) { a.Salt = 7 },
		"pValue out of range":   func(a *DisclosureCircuit) { a.PValueScaled = 10001 },
		"control over base":     func(a *DisclosureCircuit) { a.ControlSuccess = 900 },
		"treatment over base":   func(a *DisclosureCircuit) { a.TreatmentSuccess = 5000 },
		"arm over base":         func(a *DisclosureCircuit) { a.ControlCount = 2000 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			a := scenarioAssignment(t, scenarioStats, DefaultThresholds())
			mutate(a)
			if err := test.IsSolved(&DisclosureCircuit{}, a, ecc.BN254.ScalarField()); err == nil {
				t.Fatalf("expected the circuit to reject the witness")
			}
		})
	}
}

func TestCircuitRejectsSuccessesBeyondBase(t *testing.T) {
	// Commitment and flags are computed from the inflated stats, so only the base checks fail.
	for name, stats := range map[string]MedicalStats{
		"treatment over base":     {PatientCount: 100, TreatmentSuccess: 5000, ControlCount: 50, PValue: 0.001},
		"control count over base": {PatientCount: 100, TreatmentSuccess: 60, ControlSuccess: 10, ControlCount: 500, PValue: 0.001},
	} {
		t.Run(name, func(t *testing.T) {
			a := scenarioAssignment(t, stats, DefaultThresholds())
			if err := test.IsSolved(&DisclosureCircuit{}, a, ecc.BN254.ScalarField()); err == nil {
				t.Fatalf("expected the circuit to reject stats beyond their base")
			}
		})
	}
}
