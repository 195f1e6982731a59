package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	c := NewCollector()
	c.RecordProofGeneration("placeholder-sha256", true, 20*time.Millisecond)
	c.RecordProofGeneration("placeholder-sha256", true, 30*time.Millisecond)
	c.RecordProofGeneration("placeholder-sha256", false, 10*time.Millisecond)
	c.RecordVerification("groth16-bn254", false)
	c.RecordStudyCommitted()
	c.RecordError("SALT_REUSED")
	c.RecordError("SALT_REUSED")
	c.RecordPeerMessage("commitment_announce", "in")

	if got := testutil.ToFloat64(c.proofsGenerated.WithLabelValues("placeholder-sha256", "true")); got != 2 {
		t.Errorf("proofs_generated{overall=true} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.proofsGenerated.WithLabelValues("placeholder-sha256", "false")); got != 1 {
		t.Errorf("proofs_generated{overall=false} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.verifications.WithLabelValues("groth16-bn254", "false")); got != 1 {
		t.Errorf("verifications = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.studiesCommitted); got != 1 {
		t.Errorf("studies_committed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.errors.WithLabelValues("SALT_REUSED")); got != 2 {
		t.Errorf("errors = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(c.proofDuration); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.RecordStudyCommitted()
	c.RecordCircuitSetup(time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"medproof_studies_committed_total 1", "medproof_circuit_setup_seconds_count 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	a.RecordStudyCommitted()
	if got := testutil.ToFloat64(b.studiesCommitted); got != 0 {
		t.Errorf("second collector saw %v commits", got)
	}
}
