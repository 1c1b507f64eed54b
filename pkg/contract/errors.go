package contract

import (
	"errors"
	"fmt"
)

var (
	// ErrPathInvalid: an artifact id maps outside its root (absolute path, '..' escape).
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: a domain invariant does not hold (e.g. misaligned strophes).
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrInvalidInput: caller passed an argument outside the operation's domain.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDegenerateInput: a canticum with zero strophes or zero positions cannot be scored.
	ErrDegenerateInput = errors.New("degenerate input")
	// ErrUnknownPrefix: a responsion id outside the enumerated family set.
	ErrUnknownPrefix = errors.New("unknown responsion prefix")
	// ErrResponsionNotFound: the corpus holds no strophes for a responsion id.
	ErrResponsionNotFound = errors.New("responsion not found")
)

// CorpusLoadError is fatal for the whole run: without the corpus no
// trial means anything.
type CorpusLoadError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *CorpusLoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("load %s corpus %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("load %s corpus: %v", e.Kind, e.Err)
}

func (e *CorpusLoadError) Unwrap() error { return e.Err }

// InsufficientCorpusError: the sampler ran out of eligible, unused lines.
// Retrying with the same seed fails identically.
type InsufficientCorpusError struct {
	Responsion string
	Length     int
	Needed     int
	Available  int
}

func (e *InsufficientCorpusError) Error() string {
	return fmt.Sprintf("insufficient corpus for %s: need %d lines of length %d, %d available",
		e.Responsion, e.Needed, e.Length, e.Available)
}

// WriteError wraps a filesystem failure during baseline serialization.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write %s: %v", e.Path, e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }
