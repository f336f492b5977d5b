package content

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an extraction failure.
type Kind string

const (
	KindUnsupportedType Kind = "unsupported-type"
	KindDecodeFailure   Kind = "decode-failure"
	KindRenderFailure   Kind = "render-failure"
	KindOCRFailure      Kind = "ocr-failure"
)

// Error is an extraction failure. Callers must not replace it with an
// empty digest.
type Error struct {
	Kind Kind
	// Op names the step that failed, e.g. "text" or "page".
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// fail wraps err as kind unless it is a cancellation, which passes through
// so callers can tell an abandoned call from a broken document.
func fail(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
