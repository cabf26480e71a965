// Package apperr carries the error taxonomy shared by the orchestrators and
// the HTTP layer. Adapters return their own error types; the orchestrators
// classify them here, naming the stage that failed.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the transport layer
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindAccessDenied   Kind = "access_denied"
	KindNotFound       Kind = "not_found"
	KindStore          Kind = "store_error"
	KindLedger         Kind = "ledger_error"
	KindCrypto         Kind = "crypto_error"
	KindKeyUnavailable Kind = "key_unavailable"
	KindRateLimited    Kind = "rate_limited"
	KindInternal       Kind = "internal_error"
)

// Stages named in error bodies
const (
	StageValidate  = "validate"
	StageEncrypt   = "encrypt"
	StageStore     = "store"
	StageCustody   = "custody"
	StageLedger    = "ledger"
	StageAuthorize = "authorize"
	StageFetch     = "fetch"
	StageIntegrity = "integrity"
	StageDecrypt   = "decrypt"
	StageEnvelope  = "envelope"
	StageRead      = "read"
)

// Error is a classified failure
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an error without a cause
func New(kind Kind, stage, message string) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message}
}

// Wrap classifies err under kind at stage
func Wrap(kind Kind, stage string, err error, message string) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Err: err}
}

// Validation is shorthand for a validation failure
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Stage: StageValidate, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a kind to its response status
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAccessDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindKeyUnavailable:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindStore, KindLedger:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
