package artifact

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
// Callers should branch on Kind rather than matching error strings.
type Kind string

const (
	// KindConfiguration covers missing or malformed inputs. These are
	// reported before any network or filesystem work starts.
	KindConfiguration Kind = "Configuration"
	// KindNetwork covers fetch and clone failures.
	KindNetwork Kind = "Network"
	// KindFilesystem covers scratch write, read, walk and cleanup failures.
	KindFilesystem Kind = "Filesystem"
)

// Error is the structured failure of one source resolution.
//
// Index and Ref identify the offending source. Index is -1 for failures
// that are not tied to a single source (for example a bad scratch root).
type Error struct {
	Kind  Kind
	Index int
	Ref   string
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Index < 0 {
		return fmt.Sprintf("%s error: %s: %v", kindLabel(e.Kind), e.Op, e.Err)
	}
	return fmt.Sprintf("%s error: source %d (%s): %s: %v", kindLabel(e.Kind), e.Index, e.Ref, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func kindLabel(k Kind) string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNetwork:
		return "network"
	case KindFilesystem:
		return "filesystem"
	default:
		return string(k)
	}
}

// NewError builds a structured error for the source at scratch.Index.
func NewError(kind Kind, scratch Scratch, ref, op string, err error) error {
	return &Error{Kind: kind, Index: scratch.Index, Ref: ref, Op: op, Err: err}
}

// ConfigError reports a configuration problem that is not tied to a source.
func ConfigError(op string, err error) error {
	return &Error{Kind: KindConfiguration, Index: -1, Op: op, Err: err}
}

// KindOf returns the Kind of the first structured error in err's tree,
// or "" if there is none. For a run that failed and then also failed to
// clean up, this is the kind of the primary failure.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// IsKind reports whether any structured error in err's tree has kind.
func IsKind(err error, kind Kind) bool {
	found := false
	walk(err, func(e *Error) {
		if e.Kind == kind {
			found = true
		}
	})
	return found
}

func walk(err error, fn func(*Error)) {
	if err == nil {
		return
	}
	if e, ok := err.(*Error); ok {
		fn(e)
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			walk(inner, fn)
		}
	case interface{ Unwrap() error }:
		walk(u.Unwrap(), fn)
	}
}
