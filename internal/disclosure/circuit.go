// circuit.go - Groth16 disclosure circuit over BN254.

package disclosure

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// countBits is the range-check width for counts and thresholds; it matches MaxCount.
const countBits = 32

// DisclosureCircuit proves that the private stats behind DataCommitment produce the public
// predicate flags under the public thresholds. Public fields are declared in PublicSignals order.
type DisclosureCircuit struct {
	// Public inputs
	MinPatients            frontend.Variable `gnark:",public"`
	MinEfficacyRatePercent frontend.Variable `gnark:",public"`
	MaxPValueScaled        frontend.Variable `gnark:",public"`
	DataCommitment         frontend.Variable `gnark:",public"`
	ValidSampleSize        frontend.Variable `gnark:",public"`
	ValidEfficacy          frontend.Variable `gnark:",public"`
	ValidSignificance      frontend.Variable `gnark:",public"`
	OverallValid           frontend.Variable `gnark:",public"`

	// Private inputs
	PatientCount     frontend.Variable
	TreatmentSuccess frontend.Variable
	ControlSuccess   frontend.Variable
	ControlCount     frontend.Variable
	PValueScaled     frontend.Variable
	Salt             frontend.Variable
}

func (c *DisclosureCircuit) Define(api frontend.API) error {
	// Step 1: Range checks keep every comparison below the field modulus
	for _, v := range []frontend.Variable{
		c.PatientCount, c.TreatmentSuccess, c.ControlSuccess, c.ControlCount,
		c.MinPatients, c.MinEfficacyRatePercent, c.MaxPValueScaled,
	} {
		api.ToBinary(v, countBits)
	}
	api.ToBinary(c.PValueScaled, 14)
	api.AssertIsLessOrEqual(c.PValueScaled, PValueScale)

	// Step 2: Structural invariants on the private stats
	api.AssertIsDifferent(c.PatientCount, 0)
	api.AssertIsLessOrEqual(c.TreatmentSuccess, c.PatientCount)
	api.AssertIsLessOrEqual(c.ControlCount, c.PatientCount)
	api.AssertIsLessOrEqual(c.ControlSuccess, c.ControlCount)

	// Step 3: DataCommitment = MiMC(tag, counts, pValueScaled, salt)
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	hasher.Write(mimcTag(), c.PatientCount, c.TreatmentSuccess, c.ControlSuccess, c.ControlCount, c.PValueScaled, c.Salt)
	api.AssertIsEqual(c.DataCommitment, hasher.Sum())

	// Step 4: Predicate flags
	validSample := geq(api, c.PatientCount, c.MinPatients)
	validEfficacy := geq(api,
		api.Mul(c.TreatmentSuccess, 100),
		api.Mul(c.MinEfficacyRatePercent, c.PatientCount))
	validSignificance := lt(api, c.PValueScaled, c.MaxPValueScaled)
	overall := api.Mul(validSample, api.Mul(validEfficacy, validSignificance))

	api.AssertIsEqual(c.ValidSampleSize, validSample)
	api.AssertIsEqual(c.ValidEfficacy, validEfficacy)
	api.AssertIsEqual(c.ValidSignificance, validSignificance)
	api.AssertIsEqual(c.OverallValid, overall)
	return nil
}

// lt returns 1 when a < b, else 0.
func lt(api frontend.API, a, b frontend.Variable) frontend.Variable {
	return api.IsZero(api.Add(api.Cmp(a, b), 1))
}

// geq returns 1 when a >= b, else 0.
func geq(api frontend.API, a, b frontend.Variable) frontend.Variable {
	return api.Sub(1, lt(api, a, b))
}
