package errors

import (
	"errors"
)

var (
	_ error = (*wrappedError)(nil)
	_ error = (*kindError)(nil)
)

// Kind classifies why the core rejected a call.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation marks malformed input rejected before any state read.
	KindValidation
	// KindConsistency marks input that contradicts the current registry or queue.
	KindConsistency
	// KindDependency marks a referenced address that holds no code.
	KindDependency
	// KindAuthorization marks a caller without the required identity or role.
	KindAuthorization
	// KindTiming marks timelock state machine violations.
	KindTiming
	// KindPropagated marks failures raised inside a module or initializer.
	KindPropagated
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConsistency:
		return "consistency"
	case KindDependency:
		return "dependency"
	case KindAuthorization:
		return "authorization"
	case KindTiming:
		return "timing"
	case KindPropagated:
		return "propagated"
	default:
		return "unknown"
	}
}

// New returns a sentinel error tagged with kind.
func New(kind Kind, text string) error {
	return &kindError{kind: kind, msg: text}
}

type kindError struct {
	kind Kind
	msg  string
}

func (err *kindError) Error() string {
	return err.msg
}

// Kind reports the classification of the sentinel.
func (err *kindError) Kind() Kind {
	return err.kind
}

type kinded interface {
	Kind() Kind
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}

	return KindUnknown
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Wrap prefixes err with text. It returns nil for a nil err.
func Wrap(err error, text string) error {
	if err == nil {
		return nil
	}

	if len(text) == 0 {
		return err
	}

	return &wrappedError{
		err: err,
		msg: text,
	}
}

type wrappedError struct {
	err error
	msg string
}

const sep = ", err: "

func (err wrappedError) Error() string {
	if err.err == nil {
		return err.msg
	}

	return err.msg + sep + err.err.Error()
}

func (err wrappedError) Unwrap() error {
	if err.err == nil {
		return errors.New(err.msg)
	}

	return err.err
}
