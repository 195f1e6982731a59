package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeInvalidStats, "")
	err := Wrap(CodeInvalidStats, errors.New("pValue out of range"), "stats rejected")

	if !errors.Is(err, sentinel) {
		t.Fatalf("expected errors.Is to match on code")
	}
	if errors.Is(err, New(CodeInvalidProtocol, "")) {
		t.Fatalf("different codes must not match")
	}

	wrapped := fmt.Errorf("handler: %w", err)
	if CodeOf(wrapped) != CodeInvalidStats {
		t.Fatalf("CodeOf = %s, want %s", CodeOf(wrapped), CodeInvalidStats)
	}
	if HTTPStatus(wrapped) != http.StatusBadRequest {
		t.Fatalf("HTTPStatus = %d, want 400", HTTPStatus(wrapped))
	}
}

func TestDefaultsAndMetadata(t *testing.T) {
	err := New(CodeInvalidProtocol, "", WithMetadata("field", "gender"))
	if err.Message() != "invalid study protocol" {
		t.Fatalf("unexpected default message %q", err.Message())
	}
	if err.Metadata()["field"] != "gender" {
		t.Fatalf("metadata not attached: %+v", err.Metadata())
	}

	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Fatalf("plain errors should map to UNKNOWN")
	}
	if HTTPStatus(errors.New("plain")) != http.StatusInternalServerError {
		t.Fatalf("plain errors should map to 500")
	}
	if !Retryable(New(CodeStorageFailure, "")) {
		t.Fatalf("storage failures are retryable")
	}
}
