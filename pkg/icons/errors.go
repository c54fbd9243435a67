package icons

import (
	"errors"
	"strings"
)

// Kind classifies a generation failure.
type Kind int

const (
	KindUnexpected Kind = iota
	KindInvalidInput
	KindExpansion
	KindGeneration
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindExpansion:
		return "expansion_upstream"
	case KindGeneration:
		return "generation_upstream"
	default:
		return "unexpected"
	}
}

// ClientFault reports whether the failure was caused by the caller's input.
func (k Kind) ClientFault() bool {
	return k == KindInvalidInput
}

// Error is returned by Orchestrator.Generate. For upstream kinds Message is
// the upstream diagnostic text.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err. Errors not produced by the orchestrator are
// unexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

var rateLimitMarkers = []string{"429", "too many requests", "resource_exhausted", "rate limit", "throttled"}

// IsRateLimited reports whether err's text carries an upstream rate-limit
// signal, meaning the caller should retry later.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
