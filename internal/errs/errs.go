// Package errs holds the error taxonomy shared by the registry, the matcher
// and the command layer.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind string

const (
	NotFound            Kind = "NOT_FOUND"
	NameTaken           Kind = "NAME_TAKEN"
	ProxyTagTaken       Kind = "PROXY_TAG_TAKEN"
	DisplayNameTooLong  Kind = "DISPLAY_NAME_TOO_LONG"
	BlankValue          Kind = "BLANK_VALUE"
	InvalidProxyTag     Kind = "INVALID_PROXY_TAG"
	InvalidImage        Kind = "INVALID_IMAGE"
	EmptyProxiedMessage Kind = "EMPTY_PROXIED_MESSAGE"
	NotInAllowedContext Kind = "NOT_IN_ALLOWED_CONTEXT"
	UnknownCommand      Kind = "UNKNOWN_COMMAND"

	// Storage means the backend failed, not the request.
	Storage  Kind = "STORAGE"
	Internal Kind = "INTERNAL"
)

// IsValidation reports whether the kind describes a bad request from the user
// as opposed to the system being unavailable.
func (k Kind) IsValidation() bool {
	switch k {
	case Storage, Internal, "":
		return false
	}
	return true
}

// Error is a classified error. Message is safe to show to the user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. It returns nil when err is nil.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, errs.New(k, ""))
// works as a kind check.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in the chain, or Internal when
// err is not classified. It returns "" for a nil error. For a multi-error such
// as *AggregateError it returns the first system failure among the causes, or
// else the kind of the first cause, so an aggregate is only a validation error
// when all of its causes are.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Kind
		case interface{ Unwrap() []error }:
			return causesKind(e.Unwrap())
		}
		err = errors.Unwrap(err)
	}
	return Internal
}

func causesKind(causes []error) Kind {
	var first Kind
	for _, cause := range causes {
		k := KindOf(cause)
		switch {
		case k == "":
			continue
		case !k.IsValidation():
			return k
		case first == "":
			first = k
		}
	}
	if first == "" {
		return Internal
	}
	return first
}

// Is reports whether err carries the given kind anywhere in its tree,
// including every cause of an *AggregateError.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, &Error{Kind: kind})
}

// UserMessage returns the text to show a user for err. Validation errors show
// their own message; system failures get a generic one.
func UserMessage(err error) string {
	if !KindOf(err).IsValidation() {
		if err == nil {
			return ""
		}
		return "Something went wrong on our side. Please try again later."
	}
	var agg *AggregateError
	if errors.As(err, &agg) {
		return agg.Error()
	}
	var e *Error
	errors.As(err, &e)
	return e.Message
}

// AggregateError reports a batch where some items failed. Summary describes
// what succeeded.
type AggregateError struct {
	Summary string
	Errors  []error
}

func (a *AggregateError) Error() string {
	var sb strings.Builder
	sb.WriteString(a.Summary)
	if len(a.Errors) > 0 {
		sb.WriteString(".\nThese errors occurred:")
		for _, err := range a.Errors {
			sb.WriteString("\n")
			sb.WriteString(UserMessage(err))
		}
	}
	return sb.String()
}

func (a *AggregateError) Unwrap() []error {
	return a.Errors
}
