package bcp

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned by message parsing and transport operations.
var (
	// ErrParse is matched by every error produced while turning wire text or a
	// generic message into something typed. Use errors.Is(err, ErrParse).
	ErrParse = errors.New("failed to parse bcp message")
	// ErrMessageTooLarge is returned when a peer sends a line longer than the
	// configured maximum without a terminator.
	ErrMessageTooLarge = errors.New("message too large")
)

// ParseError describes a line or message that could not be parsed.
type ParseError struct {
	// Reason is a short description of what went wrong.
	Reason string
	// Culprit is the offending line or message in display form.
	Culprit string

	cause error
}

func newParseError(reason, culprit string, cause error) *ParseError {
	return &ParseError{Reason: reason, Culprit: culprit, cause: cause}
}

func (e *ParseError) Error() string {
	culprit := e.Culprit
	if culprit == "" {
		culprit = "unknown"
	}

	msg := fmt.Sprintf("failed to parse bcp message '%s': %s", culprit, e.Reason)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying conversion error, if any.
func (e *ParseError) Unwrap() error {
	return e.cause
}

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// ParameterError is a ParseError caused by a missing parameter or by a value
// that cannot be converted to the requested type.
type ParameterError struct {
	ParseError
	// Name is the parameter that was missing or invalid.
	Name string
}

func newParameterError(name, culprit string, cause error) *ParameterError {
	return &ParameterError{
		ParseError: ParseError{
			Reason:  fmt.Sprintf("missing or invalid parameter '%s'", name),
			Culprit: culprit,
			cause:   cause,
		},
		Name: name,
	}
}

// WrongHandlerError is the panic value raised when a handler is asked to
// handle a message for a command it does not own. It signals a registration
// bug rather than a runtime condition.
type WrongHandlerError struct {
	Expected string
	Actual   string
}

func (e *WrongHandlerError) Error() string {
	return fmt.Sprintf("handler for command '%s' cannot handle '%s'", e.Expected, e.Actual)
}
