package xerrors

import (
	"errors"
	iofs "io/fs"
	"os"
)

// Kind classifies webcask errors.
type Kind int

const (
	KindInvalid Kind = iota
	KindNotFound
	KindNotSupported
	KindInternal
)

// Error wraps an underlying error with additional metadata. Ref carries the
// digest or path the operation acted on.
type Error struct {
	Kind Kind
	Op   string
	Ref  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := kindString(e.Kind)
	if e.Op != "" {
		base = e.Op + ": " + base
	}
	if e.Ref != "" {
		base += " " + e.Ref
	}
	if e.Err != nil {
		return base + ": " + e.Err.Error()
	}
	return base
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

func kindString(kind Kind) string {
	switch kind {
	case KindNotFound:
		return "not found"
	case KindNotSupported:
		return "not supported"
	case KindInternal:
		return "internal error"
	default:
		return "invalid"
	}
}

// Wrap annotates err with the given metadata. If err is nil, Wrap returns nil.
func Wrap(kind Kind, op, ref string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Ref: ref, Err: err}
}

// E creates a new error with the provided metadata (no underlying error).
func E(kind Kind, op, ref string) error {
	return &Error{Kind: kind, Op: op, Ref: ref}
}

// KindOf extracts the Kind from err, walking wrapped errors as needed.
func KindOf(err error) Kind {
	if err == nil {
		return KindInvalid
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, iofs.ErrNotExist), errors.Is(err, os.ErrNotExist):
		return KindNotFound
	case errors.Is(err, iofs.ErrInvalid):
		return KindInvalid
	default:
		return KindInternal
	}
}

// IsNotFound reports whether err signals an absent entry.
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

// IsNotSupported reports whether err signals a backend capability gap.
func IsNotSupported(err error) bool { return err != nil && KindOf(err) == KindNotSupported }
