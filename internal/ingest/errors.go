package ingest

import (
	"errors"
	"net/http"
)

// Kind classifies why an invocation failed.
type Kind int

const (
	// KindUnexpected covers anything not otherwise classified, including recovered panics.
	KindUnexpected Kind = iota
	// KindInvalidPayload: the document broke a schema rule. Nothing was written.
	KindInvalidPayload
	// KindDecode: the body could not be turned into a document (base64, UTF-8, JSON, field types).
	KindDecode
	// KindStorage: the object write failed.
	KindStorage
)

// Response error codes
const (
	CodeInvalidPayload = "invalid_payload"
	CodeIngestFailed   = "ingest_failed"
)

func (k Kind) String() string {
	switch k {
	case KindInvalidPayload:
		return "invalid_payload"
	case KindDecode:
		return "decode"
	case KindStorage:
		return "storage"
	default:
		return "unexpected"
	}
}

// StatusCode maps the kind to the HTTP status returned to the caller.
// Decode failures stay 500 to match the established contract.
func (k Kind) StatusCode() int {
	if k == KindInvalidPayload {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Code is the "error" field of the response body.
func (k Kind) Code() string {
	if k == KindInvalidPayload {
		return CodeInvalidPayload
	}
	return CodeIngestFailed
}

// Error is a classified ingest failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of err, KindUnexpected for unclassified errors.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindUnexpected
}
