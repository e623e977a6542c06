// Package apperr defines the error kinds shared by the extraction pipeline
// and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for status mapping and retry decisions.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindConflict
	KindNotFound
	KindModelUnavailable
	KindEmptyResponse
	KindMalformedResponse
	KindSchemaViolation
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindModelUnavailable:
		return "model_unavailable"
	case KindEmptyResponse:
		return "empty_response"
	case KindMalformedResponse:
		return "malformed_response"
	case KindSchemaViolation:
		return "schema_violation"
	case KindPersistence:
		return "persistence_failed"
	default:
		return "internal"
	}
}

// Retryable reports whether the VLM client may try again after this kind.
func (k Kind) Retryable() bool {
	return k == KindModelUnavailable
}

// Error carries a Kind alongside the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Message != "":
		return e.Message
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Msg builds a kinded error whose message is safe to show clients.
func Msg(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// KindOf returns the kind of the outermost *Error in the chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps a kind onto the HTTP status returned to callers.
func Status(kind Kind) int {
	switch kind {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindModelUnavailable, KindEmptyResponse:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-facing detail for err. Only validation,
// auth, conflict and not-found errors expose their own message.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindValidation, KindAuth, KindConflict, KindNotFound:
			if e.Message != "" {
				return e.Message
			}
		}
		return defaultMessage(e.Kind)
	}
	return defaultMessage(KindInternal)
}

func defaultMessage(kind Kind) string {
	switch kind {
	case KindValidation:
		return "Invalid request"
	case KindAuth:
		return "Could not validate credentials"
	case KindConflict:
		return "Resource already exists"
	case KindNotFound:
		return "Not found"
	case KindModelUnavailable:
		return "Vision model unavailable, please retry later"
	case KindEmptyResponse:
		return "Vision model returned no content"
	case KindMalformedResponse:
		return "Vision model returned malformed output"
	case KindSchemaViolation:
		return "Vision model output did not match the nutrition schema"
	case KindPersistence:
		return "Analysis completed but could not be saved"
	default:
		return "Internal server error"
	}
}
