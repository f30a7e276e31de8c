package errors

import (
	stderrors "errors"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{MissingFile, 400},
		{SchemaViolation, 400},
		{DuplicateSubmission, 400},
		{FileTooLarge, 413},
		{PayloadTooLarge, 413},
		{ProblemNotFound, 404},
		{SubmissionNotFound, 404},
		{DatabaseError, 500},
		{TransactionFailed, 500},
		{StorageError, 500},
		{InternalServerError, 500},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%d) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestWrapPreservesUnderlyingError(t *testing.T) {
	base := stderrors.New("connection refused")
	wrapped := Wrapf(base, StorageError, "put object failed")

	if !stderrors.Is(wrapped, base) {
		t.Error("wrapped error should unwrap to the base error")
	}
	if GetCode(wrapped) != StorageError {
		t.Errorf("code = %d, want %d", GetCode(wrapped), StorageError)
	}
	if wrapped.Error() != "put object failed" {
		t.Errorf("message = %q", wrapped.Error())
	}
}

func TestIsMatchesCode(t *testing.T) {
	err := New(DuplicateSubmission)
	if !Is(err, DuplicateSubmission) {
		t.Error("Is should match the error's code")
	}
	if Is(err, ProblemNotFound) {
		t.Error("Is should not match a different code")
	}
	if Is(stderrors.New("plain"), DuplicateSubmission) {
		t.Error("Is should not match plain errors")
	}
}

func TestGetCodeOnPlainError(t *testing.T) {
	if got := GetCode(stderrors.New("plain")); got != InternalServerError {
		t.Errorf("code = %d, want %d", got, InternalServerError)
	}
	if got := GetCode(nil); got != Success {
		t.Errorf("nil code = %d, want %d", got, Success)
	}
}

func TestSchemaErrorCarriesField(t *testing.T) {
	err := SchemaError("lang", "is required")
	if !Is(err, SchemaViolation) {
		t.Fatalf("got code %d, want SchemaViolation", GetCode(err))
	}
	if err.Details["field"] != "lang" {
		t.Errorf("field detail = %v, want lang", err.Details["field"])
	}
	if err.Error() != `"lang" is required` {
		t.Errorf("message = %q", err.Error())
	}
}
