// handlers.go - Study and proof endpoints.

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medproof/internal/apperr"
	"medproof/internal/commitment"
	"medproof/internal/disclosure"
	"medproof/internal/store"
)

type studyResponse struct {
	StudyID    string `json:"studyId"`
	Commitment string `json:"commitment"`
}

type proofRequest struct {
	StudyCommitment string                   `json:"studyCommitment,omitempty"`
	Stats           *disclosure.MedicalStats `json:"stats"`
	Thresholds      *disclosure.Thresholds   `json:"thresholds,omitempty"`
}

type proofResponse struct {
	ID              string `json:"id"`
	StudyCommitment string `json:"studyCommitment,omitempty"`
	*disclosure.Proof
}

// handleCreateStudy commits a protocol. Committing an already stored protocol returns the
// existing record with 200.
func (s *Server) handleCreateStudy(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	protocol, err := commitment.ParseProtocol(data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	canonical, err := commitment.Canonicalize(protocol)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cm, err := commitment.Commit(protocol)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rec := store.StudyRecord{
		ID:         s.newID(),
		Commitment: cm.String(),
		Protocol:   canonical,
		CreatedAt:  s.now(),
	}
	ctx := r.Context()
	err = s.store.SaveStudy(ctx, rec)
	if errors.Is(err, store.ErrConflict) {
		existing, getErr := s.store.GetStudy(ctx, cm.String())
		if getErr != nil {
			s.writeError(w, r, getErr)
			return
		}
		writeJSON(w, http.StatusOK, studyResponse{StudyID: existing.ID, Commitment: existing.Commitment})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.RecordStudyCommitted()
	s.log.Audit("study_committed", map[string]any{
		"studyId":    rec.ID,
		"commitment": rec.Commitment,
	})
	writeJSON(w, http.StatusCreated, studyResponse{StudyID: rec.ID, Commitment: rec.Commitment})
}

func (s *Server) handleGetStudy(w http.ResponseWriter, r *http.Request) {
	cm, err := commitment.ParseStudyCommitment(chi.URLParam(r, "commitment"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.store.GetStudy(r.Context(), cm.String())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListStudyProofs(w http.ResponseWriter, r *http.Request) {
	cm, err := commitment.ParseStudyCommitment(chi.URLParam(r, "commitment"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recs, err := s.store.ListProofs(r.Context(), cm.String())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]proofResponse, 0, len(recs))
	for _, rec := range recs {
		resp, err := decodeRecord(rec)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateProof generates a proof with a fresh server-side salt.
// Steps:
//  1. Decode the request and resolve the thresholds
//  2. Check the referenced study exists
//  3. Generate the proof
//  4. Store and audit the proof
func (s *Server) handleCreateProof(w http.ResponseWriter, r *http.Request) {
	// Step 1: Request. Thresholds decode over a copy of the server defaults so a partial
	// object only overrides the fields it names.
	defaults := s.thresholds
	req := proofRequest{Thresholds: &defaults}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Stats == nil {
		s.writeError(w, r, apperr.New(apperr.CodeInvalidStats, "stats are required"))
		return
	}
	thresholds := s.thresholds
	if req.Thresholds != nil {
		thresholds = *req.Thresholds
	}

	// Step 2: Study binding
	ctx := r.Context()
	if req.StudyCommitment != "" {
		cm, err := commitment.ParseStudyCommitment(req.StudyCommitment)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if _, err := s.store.GetStudy(ctx, cm.String()); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	// Step 3: Generation
	salt, err := disclosure.NewSalt()
	if err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.CodeInternal, err, "salt generation failed"))
		return
	}
	start := time.Now()
	proof, err := s.engine.GenerateProof(*req.Stats, salt, thresholds)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	overall := proof.PublicSignals[disclosure.SignalOverallValid] == "1"
	s.metrics.RecordProofGeneration(s.engine.Method(), overall, time.Since(start))

	// Step 4: Persistence
	payload, err := json.Marshal(proof)
	if err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.CodeInternal, err, "encode proof"))
		return
	}
	rec := store.ProofRecord{
		ID:              s.newID(),
		StudyCommitment: req.StudyCommitment,
		ProofHash:       proof.Metadata.ProofHash,
		Method:          s.engine.Method(),
		Proof:           payload,
		CreatedAt:       s.now(),
	}
	if err := s.store.SaveProof(ctx, rec); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.log.Audit("proof_generated", map[string]any{
		"proofId":         rec.ID,
		"studyCommitment": rec.StudyCommitment,
		"proofHash":       rec.ProofHash,
		"method":          rec.Method,
		"overallValid":    overall,
		"selfVerified":    proof.Metadata.Verified,
	})
	writeJSON(w, http.StatusCreated, proofResponse{ID: rec.ID, StudyCommitment: rec.StudyCommitment, Proof: proof})
}

func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetProof(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := decodeRecord(*rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleVerifyProof answers 200 for any decodable proof; invalid proofs are reported in the body.
func (s *Server) handleVerifyProof(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var proof disclosure.Proof
	if err := json.Unmarshal(data, &proof); err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.CodeInvalidArgument, err, "malformed proof JSON"))
		return
	}

	res := s.engine.Verify(&proof)
	s.metrics.RecordVerification(res.Method, res.Valid)
	s.log.Audit("proof_verified", map[string]any{
		"proofHash": proof.Metadata.ProofHash,
		"method":    res.Method,
		"valid":     res.Valid,
		"error":     res.Error,
	})
	writeJSON(w, http.StatusOK, res)
}

func decodeRecord(rec store.ProofRecord) (proofResponse, error) {
	var p disclosure.Proof
	if err := json.Unmarshal(rec.Proof, &p); err != nil {
		return proofResponse{}, apperr.Wrap(apperr.CodeStorageFailure, err, "stored proof is corrupt")
	}
	return proofResponse{ID: rec.ID, StudyCommitment: rec.StudyCommitment, Proof: &p}, nil
}
