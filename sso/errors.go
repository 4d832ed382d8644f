package sso

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"golang.org/x/oauth2"
)

// Kind classifies a login failure.
type Kind string

const (
	// KindTransport is a network, IO, timeout or cancellation failure. The
	// caller may retry the login.
	KindTransport Kind = "transport"

	// KindTokenExchange means the provider rejected the code or credentials,
	// or answered with a malformed token response. The code is spent, so the
	// login flow must restart from the authorization step.
	KindTokenExchange Kind = "token_exchange"

	// KindProfileFetch is a non-2xx or unparseable profile or email response.
	KindProfileFetch Kind = "profile_fetch"

	// KindMissingIdentifier means the provider did not return its account id.
	KindMissingIdentifier Kind = "missing_identifier"

	// KindInvalidConfig is a provider configuration error.
	KindInvalidConfig Kind = "invalid_config"
)

// Error is the error type returned by the exchange and identity pipeline.
type Error struct {
	// Kind is the failure class
	Kind Kind

	// Stage is the last state the attempt reached before failing
	Stage Stage

	// Message describes the failure
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, stage Stage, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when err
// does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	return KindOf(err) == KindTransport
}

// IsTokenExchange reports whether err is a token exchange rejection.
func IsTokenExchange(err error) bool {
	return KindOf(err) == KindTokenExchange
}

// IsProfileFetch reports whether err is a profile or email fetch failure.
func IsProfileFetch(err error) bool {
	return KindOf(err) == KindProfileFetch
}

// IsMissingIdentifier reports whether err is a missing account id failure.
func IsMissingIdentifier(err error) bool {
	return KindOf(err) == KindMissingIdentifier
}

// Retryable reports whether restarting the same login attempt may succeed.
func Retryable(err error) bool {
	return IsTransport(err)
}

// isTransportError reports whether err came from the network layer rather
// than from the provider's answer.
func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

// classifyExchangeError maps an error from oauth2.Config.Exchange onto the
// error taxonomy.
func classifyExchangeError(err error) *Error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		msg := fmt.Sprintf("provider rejected authorization code (status %d)", rerr.Response.StatusCode)
		if rerr.ErrorCode != "" {
			msg = fmt.Sprintf("provider rejected authorization code: %s", rerr.ErrorCode)
		}
		return newError(KindTokenExchange, StageCodeReceived, msg, err)
	}
	if isTransportError(err) {
		return newError(KindTransport, StageCodeReceived, "token request failed", err)
	}
	return newError(KindTokenExchange, StageCodeReceived, "malformed token response", err)
}
