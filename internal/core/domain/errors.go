package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")
	ErrUnparsableLabel  = errors.New("unparsable label")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrIO               = errors.New("io failure")
	ErrIndexEmpty       = errors.New("exemplar index empty")
	// ErrEmptyDocument marks a zero-byte document. It fails once and does not
	// hold its message back for retry.
	ErrEmptyDocument = errors.New("empty document")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsSystemic reports whether err must abort the whole run rather than a single document.
func IsSystemic(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// ErrorCode is the stable machine readable code surfaces report for err.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrDocumentNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrIndexEmpty):
		return "INDEX_EMPTY"
	case errors.Is(err, ErrTemporary), errors.Is(err, ErrStoreUnavailable):
		return "UNAVAILABLE"
	case errors.Is(err, ErrIO):
		return "IO"
	default:
		return "INTERNAL"
	}
}
