package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for caller-checkable conditions.
var (
	ErrDuplicatePackage = errors.New("graph: duplicate package id")
	ErrCycle            = errors.New("graph: dependency cycle detected")
)

// DuplicatePackageError reports two descriptors sharing one ID.
type DuplicatePackageError struct {
	ID string
}

func (e *DuplicatePackageError) Error() string {
	return fmt.Sprintf("%s: %q", ErrDuplicatePackage, e.ID)
}

func (e *DuplicatePackageError) Unwrap() error { return ErrDuplicatePackage }

// CycleError carries the visit stack from the repeated package back to itself,
// e.g. [A B A].
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return ErrCycle.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(e.Path, " → "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }
