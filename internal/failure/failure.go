// Package failure defines the error kinds shared by the provider adapters,
// the generation pipeline and the HTTP boundary.
package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindMissingCredential Kind = "missing_credential"
	KindRateLimited       Kind = "rate_limited"
	KindForbidden         Kind = "forbidden"
	KindProvider          Kind = "provider_error"
	KindEmptyResponse     Kind = "empty_response"
	KindMalformedResponse Kind = "malformed_response"
	KindExtractionFailed  Kind = "extraction_failed"
	KindGenerationFailed  Kind = "generation_failed"
	KindInvalidRequest    Kind = "invalid_request"
	KindUnknown           Kind = "unknown"
)

// Error is a classified failure. Provider, Status and Body are only set when
// the failure came from an external service.
type Error struct {
	Kind     Kind
	Provider string
	Status   int
	Body     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = msg + ": " + e.Body
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ChainError reports that every provider in a primary→fallback chain failed.
type ChainError struct {
	Primary  error
	Fallback error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("generation failed: primary error: %v; fallback error: %v", e.Primary, e.Fallback)
}

func (e *ChainError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func MissingCredential(provider string) *Error {
	return &Error{Kind: KindMissingCredential, Provider: provider, Message: "API credential is not configured"}
}

func Malformed(detail string, err error) *Error {
	return &Error{Kind: KindMalformedResponse, Message: detail, Err: err}
}

func Invalid(message string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: message}
}

// FromStatus classifies a non-success HTTP status returned by a provider.
func FromStatus(provider string, status int, body string) *Error {
	e := &Error{Kind: KindProvider, Provider: provider, Status: status, Body: body, Message: "request failed"}
	switch status {
	case http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.Message = "rate limit exceeded"
	case http.StatusForbidden:
		e.Kind = KindForbidden
		e.Message = "access forbidden"
	}
	return e
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var chain *ChainError
	if errors.As(err, &chain) {
		return KindGenerationFailed
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether any classified error in err's tree has the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	if kind == KindGenerationFailed {
		var chain *ChainError
		return errors.As(err, &chain)
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == kind {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if Is(inner, kind) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return Is(x.Unwrap(), kind)
	}
	return false
}

// HTTPStatus maps err to the status the HTTP boundary should answer with.
// For a failed chain the primary failure decides first, then the fallback.
func HTTPStatus(err error) int {
	var chain *ChainError
	if errors.As(err, &chain) {
		for _, cause := range []error{chain.Primary, chain.Fallback} {
			switch KindOf(cause) {
			case KindRateLimited:
				return http.StatusTooManyRequests
			case KindForbidden:
				return http.StatusForbidden
			}
		}
		return http.StatusInternalServerError
	}
	switch KindOf(err) {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
