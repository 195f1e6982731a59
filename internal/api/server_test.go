package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"medproof/internal/disclosure"
	"medproof/internal/ratelimit"
	"medproof/internal/store"
)

const protocolJSON = `{
  "condition": {"code": "E11.9", "system": "ICD-10"},
  "treatment": {"code": "A10BA02", "display": "Metformin"},
  "inclusionCriteria": {"ageRange": {"min": 18, "max": 75}, "gender": "all"},
  "primaryEndpoint": {"measure": "HbA1c reduction", "timepoint": "24 weeks"},
  "studyDesign": {"type": "retrospective", "duration": "12 months"}
}`

const statsJSON = `{"patientCount":1670,"treatmentSuccess":1303,"controlSuccess":428,"controlCount":823,"pValue":0.0001}`

type testServer struct {
	*Server
	store *store.MemoryStore
}

func newTestServer(t *testing.T, limiter *ratelimit.ClientLimiter) *testServer {
	t.Helper()
	st := store.NewMemoryStore()
	s := NewServer(Options{
		Store:   st,
		Engine:  disclosure.NewPlaceholder(),
		Limiter: limiter,
	})
	return &testServer{Server: s, store: st}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreateAndGetStudy(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/studies", protocolJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[studyResponse](t, rec)
	require.Len(t, created.Commitment, 64)
	require.NotEmpty(t, created.StudyID)

	// Committing the same protocol again returns the existing study.
	rec = ts.do(t, http.MethodPost, "/api/v1/studies", protocolJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[studyResponse](t, rec)
	require.Equal(t, created, again)

	rec = ts.do(t, http.MethodGet, "/api/v1/studies/"+created.Commitment, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[store.StudyRecord](t, rec)
	require.Equal(t, created.StudyID, got.ID)
	require.Contains(t, string(got.Protocol), `"E11.9"`)

	rec = ts.do(t, http.MethodGet, "/api/v1/studies/"+strings.Repeat("a", 64), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", string(decode[errorBody](t, rec).Error.Code))

	rec = ts.do(t, http.MethodGet, "/api/v1/studies/not-a-digest", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateStudyRejectsInvalidProtocol(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/studies", `{"condition":{"code":"E11"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_PROTOCOL", string(decode[errorBody](t, rec).Error.Code))

	rec = ts.do(t, http.MethodPost, "/api/v1/studies", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProofLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	study := decode[studyResponse](t, ts.do(t, http.MethodPost, "/api/v1/studies", protocolJSON))

	body := `{"studyCommitment":"` + study.Commitment + `","stats":` + statsJSON + `}`
	rec := ts.do(t, http.MethodPost, "/api/v1/proofs", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID              string   `json:"id"`
		StudyCommitment string   `json:"studyCommitment"`
		PublicSignals   []string `json:"publicSignals"`
		Metadata        struct {
			EfficacyRate int64 `json:"efficacyRate"`
			Verified     bool  `json:"verified"`
		} `json:"metadata"`
		Proof map[string]any `json:"proof"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, study.Commitment, created.StudyCommitment)
	require.Len(t, created.PublicSignals, disclosure.NumPublicSignals)
	require.Equal(t, "1", created.PublicSignals[disclosure.SignalOverallValid])
	require.EqualValues(t, 78, created.Metadata.EfficacyRate)
	require.True(t, created.Metadata.Verified)
	require.Equal(t, "groth16", created.Proof["protocol"])
	require.NotContains(t, rec.Body.String(), "salt")

	// Stored proof round-trips and verifies.
	rec = ts.do(t, http.MethodGet, "/api/v1/proofs/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	stored := rec.Body.Bytes()

	rec = ts.do(t, http.MethodPost, "/api/v1/proofs/verify", string(stored))
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[disclosure.VerificationResult](t, rec)
	require.True(t, res.Valid, res.Error)
	require.Equal(t, disclosure.MethodPlaceholder, res.Method)

	rec = ts.do(t, http.MethodGet, "/api/v1/studies/"+study.Commitment+"/proofs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]proofResponse](t, rec)
	require.Len(t, list, 1)
	require.Equal(t, created.ID, list[0].ID)

	rec = ts.do(t, http.MethodGet, "/api/v1/proofs/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyReportsTampering(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodPost, "/api/v1/proofs", `{"stats":`+statsJSON+`}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var proof disclosure.Proof
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &proof))
	proof.PublicSignals[disclosure.SignalMinPatients] = "10"
	tampered, err := json.Marshal(&proof)
	require.NoError(t, err)

	rec = ts.do(t, http.MethodPost, "/api/v1/proofs/verify", string(tampered))
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[disclosure.VerificationResult](t, rec)
	require.False(t, res.Valid)
	require.NotEmpty(t, res.Error)

	rec = ts.do(t, http.MethodPost, "/api/v1/proofs/verify", `{"proof":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateProofErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	cases := []struct {
		name string
		body string
		code int
		want string
	}{
		{"missing stats", `{}`, http.StatusBadRequest, "INVALID_STATS"},
		{"negative count", `{"stats":{"patientCount":-1,"treatmentSuccess":0,"controlSuccess":0,"controlCount":0,"pValue":0.1}}`, http.StatusBadRequest, "INVALID_STATS"},
		{"bad thresholds", `{"stats":` + statsJSON + `,"thresholds":{"minPatients":1,"minEfficacyRatePercent":101,"maxPValueScaled":1}}`, http.StatusBadRequest, "INVALID_THRESHOLDS"},
		{"unknown field", `{"stats":` + statsJSON + `,"salt":"1"}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"unknown study", `{"studyCommitment":"` + strings.Repeat("b", 64) + `","stats":` + statsJSON + `}`, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/proofs", tc.body)
			require.Equal(t, tc.code, rec.Code, rec.Body.String())
			require.Equal(t, tc.want, string(decode[errorBody](t, rec).Error.Code))
		})
	}
}

func TestCustomThresholds(t *testing.T) {
	ts := newTestServer(t, nil)
	body := `{"stats":` + statsJSON + `,"thresholds":{"minPatients":5000,"minEfficacyRatePercent":70,"maxPValueScaled":500}}`
	rec := ts.do(t, http.MethodPost, "/api/v1/proofs", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var proof disclosure.Proof
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &proof))
	require.Equal(t, "5000", proof.PublicSignals[disclosure.SignalMinPatients])
	require.Equal(t, "0", proof.PublicSignals[disclosure.SignalOverallValid])
}

func TestPartialThresholdsKeepDefaults(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodPost, "/api/v1/proofs", `{"stats":`+statsJSON+`,"thresholds":{"minPatients":50}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var proof disclosure.Proof
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &proof))
	defaults := disclosure.DefaultThresholds()
	require.Equal(t, "50", proof.PublicSignals[disclosure.SignalMinPatients])
	require.Equal(t, strconv.FormatInt(defaults.MinEfficacyRatePercent, 10), proof.PublicSignals[disclosure.SignalMinEfficacy])
	require.Equal(t, strconv.FormatInt(defaults.MaxPValueScaled, 10), proof.PublicSignals[disclosure.SignalMaxPValueScaled])
	require.Equal(t, "1", proof.PublicSignals[disclosure.SignalValidSignificance])
	require.Equal(t, "1", proof.PublicSignals[disclosure.SignalOverallValid])

	rec = ts.do(t, http.MethodPost, "/api/v1/proofs", `{"stats":`+statsJSON+`,"thresholds":null}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestProofGenerationRateLimited(t *testing.T) {
	ts := newTestServer(t, ratelimit.NewClientLimiter(0.001, 1, time.Minute))

	rec := ts.do(t, http.MethodPost, "/api/v1/proofs", `{"stats":`+statsJSON+`}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/proofs", `{"stats":`+statsJSON+`}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "RATE_LIMITED", string(decode[errorBody](t, rec).Error.Code))
	require.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Verification is not limited.
	rec = ts.do(t, http.MethodPost, "/api/v1/proofs/verify", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodPost, "/api/v1/studies", protocolJSON)

	rec := ts.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"store"`)

	rec = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "medproof_studies_committed_total 1")
}

func TestStartShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.Start(ctx, "127.0.0.1:0", time.Second, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestBodyLimit(t *testing.T) {
	ts := newTestServer(t, nil)
	big := bytes.Repeat([]byte("a"), maxBodyBytes+1)
	rec := ts.do(t, http.MethodPost, "/api/v1/studies", string(big))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
