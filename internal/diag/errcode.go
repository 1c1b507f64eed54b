package diag

import (
	"context"
	"errors"
	"os"
	"time"

	"responsio/pkg/contract"
)

// Code is a coarse error class for logs and metrics, independent of exit codes.
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeCorpus    Code = "corpus"
	CodeCoverage  Code = "coverage"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify maps an error to a Code using sentinels and error types only.
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	var cl *contract.CorpusLoadError
	if errors.As(err, &cl) {
		return CodeCorpus
	}
	var ic *contract.InsufficientCorpusError
	if errors.As(err, &ic) {
		return CodeCoverage
	}
	if errors.Is(err, contract.ErrInvariantViolation) ||
		errors.Is(err, contract.ErrInvalidInput) ||
		errors.Is(err, contract.ErrDegenerateInput) ||
		errors.Is(err, contract.ErrUnknownPrefix) ||
		errors.Is(err, contract.ErrResponsionNotFound) ||
		errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	var we *contract.WriteError
	if errors.As(err, &we) {
		return CodeIO
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// NowUTC returns the current time as RFC3339 UTC.
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
