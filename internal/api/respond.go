// respond.go - JSON request decoding and response encoding.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"medproof/internal/apperr"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(err)
	msg := apperr.AttributesOf(code).Message
	if e, ok := apperr.From(err); ok {
		msg = e.Message()
	}

	s.metrics.RecordError(string(code))
	ev := s.log.Warn()
	if status >= http.StatusInternalServerError {
		ev = s.log.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Str("code", string(code)).Msg("request failed")

	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, apperr.New(apperr.CodeRateLimited, ""))
}

// readBody reads a bounded request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Newf(apperr.CodeInvalidArgument, "request body exceeds %d bytes", maxBodyBytes)
		}
		return nil, apperr.Wrap(apperr.CodeInvalidArgument, err, "read request body")
	}
	return data, nil
}

// decodeJSON decodes a bounded body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, err, fmt.Sprintf("malformed request body: %v", err))
	}
	return nil
}
