package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrDomain is matched by every DomainError via errors.Is.
	ErrDomain = errors.New("domain error")

	ErrMissingColumn = errors.New("missing required column")
	ErrEmptySource   = errors.New("source has no header row")
)

// LoadError reports that one named source could not be fetched or parsed.
// It never aborts sibling sources.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DomainError signals an invalid query argument, e.g. rescaling against a
// zero maximum. Callers treat it as "cannot render".
type DomainError struct {
	Op  string
	Msg string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *DomainError) Is(target error) bool { return target == ErrDomain }
