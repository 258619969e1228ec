// Package errs classifies the failures of a mirror run.
//
// Every component returns plain errors wrapped in an *Error carrying a Kind.
// The pipeline driver only looks at the Kind to decide whether to reset the
// cache and continue, or to persist the cache and abort.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind tags an error with the way the pipeline must react to it.
type Kind string

const (
	// KindCacheCorrupt means a cache file could not be decoded. The cache is
	// treated as empty and the file discarded.
	KindCacheCorrupt Kind = "CACHE_CORRUPT"
	// KindUpstream is a failure talking to the release API or downloading an
	// asset. It aborts the run, no retry.
	KindUpstream Kind = "UPSTREAM_ERROR"
	// KindExtraction is an unexpected package: the extractor failed or its
	// output has no Architecture field. It aborts the run.
	KindExtraction Kind = "EXTRACTION_ERROR"
	// KindConfig is an invalid configuration, detected before any work.
	KindConfig Kind = "CONFIG_ERROR"
	// KindIO is a local filesystem failure.
	KindIO Kind = "IO_ERROR"
)

// Error is the tagged result of a failed operation.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "list releases acme/tool".
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Cause lets github.com/pkg/errors walk through the tag.
func (e *Error) Cause() error { return e.Err }

// New tags err with kind. A nil err yields an error carrying only the Op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a tagged error from a format string.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when err
// is nil or untagged.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Fatal reports whether err must abort the run. Only a corrupt cache is
// recoverable.
func Fatal(err error) bool {
	return err != nil && KindOf(err) != KindCacheCorrupt
}
