// stats.go - Private statistics, public thresholds and the predicate arithmetic shared by
// generation and verification.

package disclosure

import (
	"math"
	"math/big"
	"strconv"

	"medproof/internal/apperr"
)

const (
	// PValueScale converts a p-value into the integer domain used by the predicates.
	PValueScale = 10000
	// MaxCount bounds every count and threshold so the circuit can range check them in 32 bits.
	MaxCount = 1<<32 - 1
)

var (
	ErrInvalidStats      = apperr.New(apperr.CodeInvalidStats, "")
	ErrInvalidThresholds = apperr.New(apperr.CodeInvalidThresholds, "")
)

// MedicalStats is the private input to proof generation.
type MedicalStats struct {
	PatientCount     int64   `json:"patientCount"`
	TreatmentSuccess int64   `json:"treatmentSuccess"`
	ControlSuccess   int64   `json:"controlSuccess"`
	ControlCount     int64   `json:"controlCount"`
	PValue           float64 `json:"pValue"`
}

// Validate checks the structural invariants that hold for every backend.
func (s MedicalStats) Validate() error {
	counts := []struct {
		name string
		v    int64
	}{
		{"patientCount", s.PatientCount},
		{"treatmentSuccess", s.TreatmentSuccess},
		{"controlSuccess", s.ControlSuccess},
		{"controlCount", s.ControlCount},
	}
	for _, c := range counts {
		if c.v < 0 {
			return invalidStats(c.name, c.name+" cannot be negative")
		}
		if c.v > MaxCount {
			return invalidStats(c.name, c.name+" exceeds the supported range")
		}
	}
	if s.PatientCount == 0 {
		return invalidStats("patientCount", "patientCount must be positive")
	}
	if s.TreatmentSuccess > s.PatientCount {
		return invalidStats("treatmentSuccess", "treatmentSuccess exceeds patientCount")
	}
	if s.ControlCount > s.PatientCount {
		return invalidStats("controlCount", "controlCount exceeds patientCount")
	}
	if s.ControlSuccess > s.ControlCount {
		return invalidStats("controlSuccess", "controlSuccess exceeds controlCount")
	}
	if math.IsNaN(s.PValue) || s.PValue < 0 || s.PValue > 1 {
		return invalidStats("pValue", "pValue must be within [0, 1]")
	}
	return nil
}

// ValidateArms additionally requires that the treatment arm, patientCount - controlCount,
// bounds treatmentSuccess.
func (s MedicalStats) ValidateArms() error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.TreatmentSuccess > s.PatientCount-s.ControlCount {
		return invalidStats("treatmentSuccess", "treatmentSuccess exceeds the treatment arm size")
	}
	return nil
}

func invalidStats(field, msg string) error {
	return apperr.New(apperr.CodeInvalidStats, msg, apperr.WithMetadata("field", field))
}

// PValueScaled returns floor(p * PValueScale) computed on the exact decimal value of p's
// shortest representation, so 0.0029 scales to 29 rather than 28.
func PValueScaled(p float64) int64 {
	if math.IsNaN(p) || p <= 0 {
		return 0
	}
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(p, 'g', -1, 64))
	if !ok {
		return int64(math.Floor(p * PValueScale))
	}
	r.Mul(r, big.NewRat(PValueScale, 1))
	q := new(big.Int).Quo(r.Num(), r.Denom())
	if !q.IsInt64() {
		return math.MaxInt64
	}
	return q.Int64()
}

// EfficacyPercent is treatmentSuccess*100/patientCount, truncated. Reporting only; the
// predicate compares exactly.
func EfficacyPercent(treatmentSuccess, patientCount int64) int64 {
	if patientCount <= 0 {
		return 0
	}
	return treatmentSuccess * 100 / patientCount
}

// Thresholds is the public disclosure policy.
type Thresholds struct {
	MinPatients            int64 `json:"minPatients" yaml:"min_patients"`
	MinEfficacyRatePercent int64 `json:"minEfficacyRatePercent" yaml:"min_efficacy_rate_percent"`
	MaxPValueScaled        int64 `json:"maxPValueScaled" yaml:"max_p_value_scaled"`
}

// DefaultThresholds is 100 patients, 70% efficacy, p < 0.05.
func DefaultThresholds() Thresholds {
	return Thresholds{MinPatients: 100, MinEfficacyRatePercent: 70, MaxPValueScaled: 500}
}

// Validate bounds each threshold to what both backends can represent.
func (t Thresholds) Validate() error {
	switch {
	case t.MinPatients < 0 || t.MinPatients > MaxCount:
		return apperr.New(apperr.CodeInvalidThresholds, "minPatients out of range", apperr.WithMetadata("field", "minPatients"))
	case t.MinEfficacyRatePercent < 0 || t.MinEfficacyRatePercent > 100:
		return apperr.New(apperr.CodeInvalidThresholds, "minEfficacyRatePercent must be within [0, 100]", apperr.WithMetadata("field", "minEfficacyRatePercent"))
	case t.MaxPValueScaled < 0 || t.MaxPValueScaled > PValueScale+1:
		return apperr.New(apperr.CodeInvalidThresholds, "maxPValueScaled must be within [0, 10001]", apperr.WithMetadata("field", "maxPValueScaled"))
	}
	return nil
}

// Predicates are the four disclosure flags.
type Predicates struct {
	ValidSampleSize   bool
	ValidEfficacy     bool
	ValidSignificance bool
	OverallValid      bool
}

// Evaluate computes the predicates over private values.
func Evaluate(s MedicalStats, t Thresholds) Predicates {
	return evaluate(s.PatientCount, s.TreatmentSuccess, PValueScaled(s.PValue), t)
}

func evaluate(patientCount, treatmentSuccess, pValueScaled int64, t Thresholds) Predicates {
	p := Predicates{
		ValidSampleSize:   patientCount >= t.MinPatients,
		ValidEfficacy:     meetsEfficacy(treatmentSuccess, patientCount, t.MinEfficacyRatePercent),
		ValidSignificance: pValueScaled < t.MaxPValueScaled,
	}
	p.OverallValid = p.ValidSampleSize && p.ValidEfficacy && p.ValidSignificance
	return p
}

// meetsEfficacy compares treatmentSuccess/patientCount >= minPercent/100 without division.
// Operands are bounded by MaxCount so the products fit in int64.
func meetsEfficacy(treatmentSuccess, patientCount, minPercent int64) bool {
	return treatmentSuccess*100 >= minPercent*patientCount
}
