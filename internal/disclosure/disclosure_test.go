package disclosure

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var scenarioStats = MedicalStats{
	PatientCount:     1670,
	TreatmentSuccess: 1303,
	ControlSuccess:   428,
	ControlCount:     823,
	PValue:           0.0001,
}

// smallSampleStats passes efficacy and significance but falls short of the default minPatients.
var smallSampleStats = MedicalStats{
	PatientCount:     50,
	TreatmentSuccess: 40,
	ControlSuccess:   6,
	ControlCount:     12,
	PValue:           0.0001,
}

func freshSalt(t *testing.T) *Salt {
	t.Helper()
	s, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt failed: %v", err)
	}
	return s
}

func TestScenarioPassingStudy(t *testing.T) {
	proof, err := GenerateProof(scenarioStats, freshSalt(t), DefaultThresholds())
	if err != nil {
		t.Fatalf("GenerateProof failed: %v", err)
	}
	if proof.Metadata.EfficacyRate != 78 {
		t.Errorf("efficacyRate = %d, want 78", proof.Metadata.EfficacyRate)
	}
	if proof.PublicSignals[SignalOverallValid] != "1" {
		t.Errorf("overallValid = %s, want 1", proof.PublicSignals[SignalOverallValid])
	}
	if !proof.Metadata.Verified || proof.Metadata.VerificationTimestamp == nil {
		t.Errorf("proof should be self-verified: %+v", proof.Metadata)
	}
	res := Verify(proof)
	if !res.Valid {
		t.Fatalf("expected valid proof, got error %q", res.Error)
	}
	if res.Method != MethodPlaceholder {
		t.Errorf("method = %q", res.Method)
	}

	want := []string{"100", "70", "500"}
	for i, w := range want {
		if proof.PublicSignals[i] != w {
			t.Errorf("publicSignals[%d] = %s, want %s", i, proof.PublicSignals[i], w)
		}
	}
}

func TestScenarioSmallSample(t *testing.T) {
	proof, err := GenerateProof(smallSampleStats, freshSalt(t), DefaultThresholds())
	if err != nil {
		t.Fatalf("GenerateProof failed: %v", err)
	}
	if proof.PublicSignals[SignalValidSampleSize] != "0" {
		t.Errorf("validSampleSize = %s, want 0", proof.PublicSignals[SignalValidSampleSize])
	}
	if proof.PublicSignals[SignalOverallValid] != "0" {
		t.Errorf("overallValid = %s, want 0", proof.PublicSignals[SignalOverallValid])
	}
	// A well-formed negative proof still verifies: it truthfully states the thresholds fail.
	if res := Verify(proof); !res.Valid {
		t.Fatalf("negative proof should verify, got %q", res.Error)
	}
}

func TestRoundTripOfValidity(t *testing.T) {
	cases := []MedicalStats{
		{PatientCount: 100, TreatmentSuccess: 70, ControlSuccess: 10, ControlCount: 20, PValue: 0.0499},
		{PatientCount: 1000, TreatmentSuccess: 999, ControlSuccess: 0, ControlCount: 0, PValue: 0},
		{PatientCount: 3, TreatmentSuccess: 3, ControlSuccess: 1, ControlCount: 1, PValue: 0.01},
	}
	thresholds := []Thresholds{DefaultThresholds(), DefaultThresholds(), {MinPatients: 1, MinEfficacyRatePercent: 100, MaxPValueScaled: 101}}
	for i, s := range cases {
		proof, err := GenerateProof(s, freshSalt(t), thresholds[i])
		if err != nil {
			t.Fatalf("case %d: GenerateProof failed: %v", i, err)
		}
		if proof.PublicSignals[SignalOverallValid] != "1" {
			t.Errorf("case %d: overallValid = %s", i, proof.PublicSignals[SignalOverallValid])
		}
		if res := Verify(proof); !res.Valid {
			t.Errorf("case %d: verify failed: %s", i, res.Error)
		}
	}
}

func TestEfficacyBoundary(t *testing.T) {
	// 699/1000 is 69.9%, which truncates to 69 and must fail a 70% threshold on both sides.
	s := MedicalStats{PatientCount: 1000, TreatmentSuccess: 699, PValue: 0.001}
	proof, err := GenerateProof(s, freshSalt(t), DefaultThresholds())
	if err != nil {
		t.Fatalf("GenerateProof failed: %v", err)
	}
	if proof.PublicSignals[SignalValidEfficacy] != "0" || proof.Metadata.EfficacyRate != 69 {
		t.Fatalf("unexpected efficacy outcome: %v %d", proof.PublicSignals, proof.Metadata.EfficacyRate)
	}
	if res := Verify(proof); !res.Valid {
		t.Fatalf("verify failed: %s", res.Error)
	}
}

func TestTamperDetection(t *testing.T) {
	base, err := GenerateProof(scenarioStats, freshSalt(t), DefaultThresholds())
	if err != nil {
		t.Fatalf("GenerateProof failed: %v", err)
	}

	tampers := map[string]func(p *Proof){
		"flip overallValid":    func(p *Proof) { p.PublicSignals[SignalOverallValid] = "0" },
		"flip all flags":       func(p *Proof) { copy(p.PublicSignals[4:], []string{"0", "0", "0", "0"}) },
		"lower minPatients":    func(p *Proof) { p.PublicSignals[SignalMinPatients] = "10" },
		"swap commitment":      func(p *Proof) { p.PublicSignals[SignalDataCommitment] = "12345" },
		"inflate sample size":  func(p *Proof) { p.Metadata.SampleSize = 10 },
		"inflate efficacy":     func(p *Proof) { p.Metadata.EfficacyRate = 10 },
		"efficacy above 100":   func(p *Proof) { p.Metadata.EfficacyRate = 5000 },
		"forge pValue":         func(p *Proof) { p.Metadata.PValue = 0.2 },
		"edit pi_a":            func(p *Proof) { p.Blob.PiA[0] = "1" },
		"edit pi_b":            func(p *Proof) { p.Blob.PiB[1][1] = "7" },
		"forge proofHash":      func(p *Proof) { p.Metadata.ProofHash = "00" },
		"wrong protocol":       func(p *Proof) { p.Blob.Protocol = "plonk" },
		"short signals":        func(p *Proof) { p.PublicSignals = p.PublicSignals[:7] },
		"non-decimal signal":   func(p *Proof) { p.PublicSignals[0] = "0x64" },
		"non-boolean flag":     func(p *Proof) { p.PublicSignals[SignalValidEfficacy] = "2" },
		"projective pi_c":      func(p *Proof) { p.Blob.PiC[2] = "2" },
		"pi_b missing element": func(p *Proof) { p.Blob.PiB = p.Blob.PiB[:2] },
	}

	for name, tamper := range tampers {
		t.Run(name, func(t *testing.T) {
			p := cloneProof(t, base)
			tamper(p)
			res := Verify(p)
			if res.Valid {
				t.Fatalf("tampered proof verified")
			}
			if res.Error == "" {
				t.Fatalf("expected an error description")
			}
		})
	}

	if res := Verify(base); !res.Valid {
		t.Fatalf("verification must not mutate the original: %s", res.Error)
	}
}

func TestVerifyMalformedDoesNotPanic(t *testing.T) {
	for _, p := range []*Proof{nil, {}, {PublicSignals: make([]string, 8)}} {
		if res := Verify(p); res.Valid || res.Error == "" {
			t.Fatalf("malformed proof should fail with an error: %+v", res)
		}
	}
}

func TestSaltIndependence(t *testing.T) {
	a, err := GenerateProof(scenarioStats, freshSalt(t), DefaultThresholds())
	if err != nil {
		t.Fatalf("GenerateProof failed: %v", err)
	}
	b, err := GenerateProof(scenarioStats, freshSalt(t), DefaultThresholds())
	if err != nil {
		t.Fatalf("GenerateProof failed: %v", err)
	}
	if a.Metadata.EfficacyRate != b.Metadata.EfficacyRate {
		t.Errorf("efficacy rate should not depend on the salt")
	}
	if a.PublicSignals[SignalDataCommitment] == b.PublicSignals[SignalDataCommitment] {
		t.Errorf("different salts produced the same data commitment")
	}
	if a.Metadata.ProofHash == b.Metadata.ProofHash || a.Blob.PiA[0] == b.Blob.PiA[0] {
		t.Errorf("different salts produced the same blob")
	}
}

func TestSaltSingleUse(t *testing.T) {
	salt := freshSalt(t)
	if _, err := GenerateProof(scenarioStats, salt, DefaultThresholds()); err != nil {
		t.Fatalf("first use failed: %v", err)
	}
	if !salt.Used() {
		t.Fatalf("salt should be marked used")
	}
	_, err := GenerateProof(scenarioStats, salt, DefaultThresholds())
	if !errors.Is(err, ErrSaltReused) {
		t.Fatalf("expected ErrSaltReused, got %v", err)
	}
	if _, err := GenerateProof(scenarioStats, nil, DefaultThresholds()); !errors.Is(err, ErrInvalidSalt) {
		t.Fatalf("expected ErrInvalidSalt for nil salt, got %v", err)
	}
}

func TestSaltValidationDoesNotConsume(t *testing.T) {
	salt := freshSalt(t)
	bad := scenarioStats
	bad.PValue = 1.5
	if _, err := GenerateProof(bad, salt, DefaultThresholds()); !errors.Is(err, ErrInvalidStats) {
		t.Fatalf("expected ErrInvalidStats, got %v", err)
	}
	if salt.Used() {
		t.Fatalf("rejected input must not consume the salt")
	}
}

func TestParseSalt(t *testing.T) {
	s := freshSalt(t)
	parsed, err := ParseSalt(s.String())
	if err != nil {
		t.Fatalf("ParseSalt failed: %v", err)
	}
	if parsed.String() != s.String() {
		t.Fatalf("salt changed on round trip")
	}
	for _, bad := range []string{"", "0", "-5", "abc", "21888242871839275222246405745257275088548364400416034343698204186575808495617"} {
		if _, err := ParseSalt(bad); !errors.Is(err, ErrInvalidSalt) {
			t.Errorf("ParseSalt(%q) = %v, want ErrInvalidSalt", bad, err)
		}
	}
}

func TestInvalidStats(t *testing.T) {
	cases := map[string]MedicalStats{
		"negative patients":       {PatientCount: -1},
		"zero patients":           {PatientCount: 0},
		"negative successes":      {PatientCount: 10, TreatmentSuccess: -1},
		"control over base":       {PatientCount: 10, ControlSuccess: 5, ControlCount: 4},
		"treatment over base":     {PatientCount: 100, TreatmentSuccess: 5000, ControlCount: 50, PValue: 0.001},
		"control count over base": {PatientCount: 100, TreatmentSuccess: 60, ControlSuccess: 10, ControlCount: 500, PValue: 0.001},
		"pValue above one":        {PatientCount: 10, PValue: 1.01},
		"pValue negative":         {PatientCount: 10, PValue: -0.01},
		"count beyond 32 bits":    {PatientCount: MaxCount + 1},
		"negative control count":  {PatientCount: 10, ControlCount: -3},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			if err := s.Validate(); !errors.Is(err, ErrInvalidStats) {
				t.Fatalf("expected ErrInvalidStats, got %v", err)
			}
		})
	}
}

func TestSuccessesBeyondBaseRejected(t *testing.T) {
	inflated := MedicalStats{PatientCount: 100, TreatmentSuccess: 5000, ControlCount: 500, PValue: 0.001}
	salt := freshSalt(t)
	if _, err := GenerateProof(inflated, salt, DefaultThresholds()); !errors.Is(err, ErrInvalidStats) {
		t.Fatalf("expected ErrInvalidStats, got %v", err)
	}
	// Rejected input leaves the salt usable.
	if _, err := GenerateProof(scenarioStats, salt, DefaultThresholds()); err != nil {
		t.Fatalf("salt consumed by rejected stats: %v", err)
	}

	st := &statement{
		Thresholds: DefaultThresholds(),
		Flags:      Predicates{ValidSampleSize: true, ValidEfficacy: true, ValidSignificance: true, OverallValid: true},
	}
	m := Metadata{SampleSize: 100, EfficacyRate: 5000, PValue: 0.001}
	if err := checkMetadata(m, st); err == nil {
		t.Fatalf("efficacyRate above 100 accepted")
	}
	m.EfficacyRate = 100
	if err := checkMetadata(m, st); err != nil {
		t.Fatalf("efficacyRate of 100 rejected: %v", err)
	}
}

func TestStrictArms(t *testing.T) {
	engine := NewPlaceholder(WithStrictArms(true))
	_, err := engine.GenerateProof(scenarioStats, freshSalt(t), DefaultThresholds())
	if !errors.Is(err, ErrInvalidStats) {
		t.Fatalf("1303 successes exceed a 847 patient treatment arm, got %v", err)
	}
	ok := MedicalStats{PatientCount: 2000, TreatmentSuccess: 900, ControlSuccess: 400, ControlCount: 800, PValue: 0.01}
	if _, err := engine.GenerateProof(ok, freshSalt(t), Thresholds{MinPatients: 100, MinEfficacyRatePercent: 40, MaxPValueScaled: 500}); err != nil {
		t.Fatalf("consistent arms rejected: %v", err)
	}
}

func TestInvalidThresholds(t *testing.T) {
	for _, th := range []Thresholds{
		{MinPatients: -1, MinEfficacyRatePercent: 70, MaxPValueScaled: 500},
		{MinPatients: 100, MinEfficacyRatePercent: 101, MaxPValueScaled: 500},
		{MinPatients: 100, MinEfficacyRatePercent: 70, MaxPValueScaled: 20000},
	} {
		if _, err := GenerateProof(scenarioStats, freshSalt(t), th); !errors.Is(err, ErrInvalidThresholds) {
			t.Errorf("thresholds %+v: expected ErrInvalidThresholds, got %v", th, err)
		}
	}
}

func TestPValueScaled(t *testing.T) {
	cases := map[float64]int64{
		0:      0,
		0.0001: 1,
		0.0029: 29,
		0.05:   500,
		0.0499: 499,
		1:      10000,
		1e-9:   0,
	}
	for p, want := range cases {
		if got := PValueScaled(p); got != want {
			t.Errorf("PValueScaled(%v) = %d, want %d", p, got, want)
		}
	}
}

func TestProofJSONShape(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	engine := NewPlaceholder(WithClock(func() time.Time { return fixed }), WithStudyType("hba1c-reduction"))
	proof, err := engine.GenerateProof(scenarioStats, freshSalt(t), DefaultThresholds())
	if err != nil {
		t.Fatalf("GenerateProof failed: %v", err)
	}
	data, err := json.Marshal(proof)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var shape struct {
		Proof struct {
			PiA      []string   `json:"pi_a"`
			PiB      [][]string `json:"pi_b"`
			PiC      []string   `json:"pi_c"`
			Protocol string     `json:"protocol"`
			Curve    string     `json:"curve"`
		} `json:"proof"`
		PublicSignals []string       `json:"publicSignals"`
		Metadata      map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if shape.Proof.Protocol != "groth16" || shape.Proof.Curve != "bn128" {
		t.Errorf("unexpected protocol/curve: %s/%s", shape.Proof.Protocol, shape.Proof.Curve)
	}
	if len(shape.Proof.PiA) != 3 || len(shape.Proof.PiB) != 3 || len(shape.Proof.PiC) != 3 {
		t.Errorf("blob components must be triples")
	}
	for _, key := range []string{"studyType", "efficacyRate", "sampleSize", "pValue", "timestamp", "proofHash", "verified", "verificationTimestamp"} {
		if _, ok := shape.Metadata[key]; !ok {
			t.Errorf("metadata missing %s", key)
		}
	}
	if shape.Metadata["studyType"] != "hba1c-reduction" || shape.Metadata["timestamp"] != "2024-05-01T12:00:00Z" {
		t.Errorf("unexpected metadata: %v", shape.Metadata)
	}
}

func cloneProof(t *testing.T, p *Proof) *Proof {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var out Proof
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return &out
}
