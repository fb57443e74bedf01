package pipeline

import (
	"errors"

	"github.com/gren-lang/package-registry/internal/compiler"
	"github.com/gren-lang/package-registry/internal/store"
	"github.com/gren-lang/package-registry/internal/vcs"
)

// Failure is the closed set of error classes step handlers react to.
type Failure int

const (
	FailureTransient Failure = iota
	FailureDuplicateKey
	FailureNotFound
	FailureTool
)

func (f Failure) String() string {
	switch f {
	case FailureDuplicateKey:
		return "duplicate_key"
	case FailureNotFound:
		return "not_found"
	case FailureTool:
		return "tool"
	default:
		return "transient"
	}
}

// Classify maps an adapter error onto a Failure. Anything unrecognised is
// transient.
func Classify(err error) Failure {
	switch {
	case err == nil:
		return FailureTransient
	case errors.Is(err, store.ErrDuplicateKey):
		return FailureDuplicateKey
	case errors.Is(err, vcs.ErrRepositoryNotFound):
		return FailureNotFound
	}
	if _, ok := compiler.AsToolError(err); ok {
		return FailureTool
	}
	return FailureTransient
}
