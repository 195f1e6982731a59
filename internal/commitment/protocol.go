// protocol.go - StudyProtocol data model and boundary validation.

package commitment

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"medproof/internal/apperr"
)

// Well-known optional inclusion ranges.
const (
	RangeHbA1c            = "hba1c"
	RangeBMI              = "bmi"
	RangeEjectionFraction = "ejectionFraction"
)

// Documented defaults applied to the study design on every call.
const (
	DefaultBlinding      = "open-label"
	DefaultRandomization = "none"
)

// ErrInvalidProtocol matches (errors.Is) every protocol validation failure.
var ErrInvalidProtocol = apperr.New(apperr.CodeInvalidProtocol, "")

// Coding is a coded concept such as an ICD-10 or SNOMED condition.
type Coding struct {
	Code    string `json:"code"`
	System  string `json:"system,omitempty"`
	Display string `json:"display,omitempty"`
}

// Intervention describes a treatment arm or a comparator.
type Intervention struct {
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
	Dosing  string `json:"dosing,omitempty"`
}

// NumericRange is an inclusive [Min, Max] interval.
type NumericRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// InclusionCriteria is the eligibility bag. AgeRange and Gender are required; every other
// range is optional and only committed when supplied.
type InclusionCriteria struct {
	AgeRange         *NumericRange           `json:"ageRange,omitempty"`
	Gender           string                  `json:"gender,omitempty"`
	HbA1c            *NumericRange           `json:"hba1c,omitempty"`
	BMI              *NumericRange           `json:"bmi,omitempty"`
	EjectionFraction *NumericRange           `json:"ejectionFraction,omitempty"`
	Additional       map[string]NumericRange `json:"additional,omitempty"`
}

// Endpoint is the primary outcome measure of the study.
type Endpoint struct {
	Measure   string `json:"measure,omitempty"`
	Timepoint string `json:"timepoint,omitempty"`
}

// Design describes the study design.
type Design struct {
	Type          string `json:"type,omitempty"`
	Duration      string `json:"duration,omitempty"`
	Blinding      string `json:"blinding,omitempty"`
	Randomization string `json:"randomization,omitempty"`
}

// Enrollment holds target and actual sizes. Nil means not supplied.
type Enrollment struct {
	Target *int64 `json:"target,omitempty"`
	Actual *int64 `json:"actual,omitempty"`
}

// Regulatory holds the approval and registration identifiers.
type Regulatory struct {
	IRBNumber       string `json:"irbNumber,omitempty"`
	TrialRegistryID string `json:"trialRegistryId,omitempty"`
}

// StudyProtocol is the input to Commit.
type StudyProtocol struct {
	Condition         *Coding           `json:"condition,omitempty"`
	Treatment         *Intervention     `json:"treatment,omitempty"`
	Comparator        *Intervention     `json:"comparator,omitempty"`
	InclusionCriteria InclusionCriteria `json:"inclusionCriteria"`
	PrimaryEndpoint   Endpoint          `json:"primaryEndpoint"`
	Design            Design            `json:"studyDesign"`
	Enrollment        Enrollment        `json:"enrollment"`
	Regulatory        Regulatory        `json:"regulatory"`
}

// ParseProtocol decodes a JSON protocol, rejecting unknown fields, and validates it.
func ParseProtocol(data []byte) (*StudyProtocol, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var p StudyProtocol
	if err := dec.Decode(&p); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidProtocol, err, "malformed protocol JSON")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the required canonical fields and the shape of every supplied range.
func (p *StudyProtocol) Validate() error {
	if p == nil {
		return invalid("protocol", "protocol is nil")
	}
	if p.Condition == nil || p.Condition.Code == "" {
		return invalid("condition", "condition code is required")
	}
	if p.Treatment == nil || (p.Treatment.Code == "" && p.Treatment.Display == "") {
		return invalid("treatment", "treatment code or display is required")
	}
	ic := p.InclusionCriteria
	if ic.AgeRange == nil {
		return invalid("inclusionCriteria.ageRange", "age range is required")
	}
	if ic.Gender == "" {
		return invalid("inclusionCriteria.gender", "gender is required")
	}
	if err := validateRange("inclusionCriteria.ageRange", *ic.AgeRange); err != nil {
		return err
	}
	if ic.AgeRange.Min < 0 {
		return invalid("inclusionCriteria.ageRange", "age cannot be negative")
	}
	for name, r := range ic.optionalRanges() {
		if err := validateRange("inclusionCriteria."+name, r); err != nil {
			return err
		}
	}
	for name := range ic.Additional {
		switch name {
		case "ageRange", "gender", RangeHbA1c, RangeBMI, RangeEjectionFraction:
			return invalid("inclusionCriteria.additional", "range name "+name+" is reserved")
		}
		if strings.TrimSpace(name) == "" {
			return invalid("inclusionCriteria.additional", "range name cannot be empty")
		}
	}
	e := p.Enrollment
	if e.Target != nil && *e.Target < 0 {
		return invalid("enrollment.target", "target enrollment cannot be negative")
	}
	if e.Actual != nil && *e.Actual < 0 {
		return invalid("enrollment.actual", "actual enrollment cannot be negative")
	}
	return nil
}

// optionalRanges merges the named optional ranges with the additional ones. Only ranges that
// were supplied are returned.
func (ic InclusionCriteria) optionalRanges() map[string]NumericRange {
	out := make(map[string]NumericRange, len(ic.Additional)+3)
	for name, r := range ic.Additional {
		out[name] = r
	}
	if ic.HbA1c != nil {
		out[RangeHbA1c] = *ic.HbA1c
	}
	if ic.BMI != nil {
		out[RangeBMI] = *ic.BMI
	}
	if ic.EjectionFraction != nil {
		out[RangeEjectionFraction] = *ic.EjectionFraction
	}
	return out
}

func validateRange(field string, r NumericRange) error {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) {
		return invalid(field, "range bounds must be finite numbers")
	}
	if r.Min > r.Max {
		return invalid(field, "range min exceeds max")
	}
	return nil
}

func invalid(field, msg string) error {
	return apperr.New(apperr.CodeInvalidProtocol, msg, apperr.WithMetadata("field", field))
}
