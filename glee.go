package glee

import (
	"errors"
	"fmt"
)

// Standard widths.
const (
	WidthBool = 1
	Width8    = 8
	Width16   = 16
	Width32   = 32
	Width64   = 64
)

var (
	ErrSolverTimeout = errors.New("Solver timeout")
	ErrSolverUnknown = errors.New("Solver unknown error")
)

// ErrUnsatisfiable is returned when no assignment satisfies a space.
var ErrUnsatisfiable = errors.New("glee: unsatisfiable space")

var (
	ErrNoProgramAvailable = errors.New("glee: no program available")
	ErrStackEmpty         = errors.New("glee: stack empty")
)

// StateError represents a fatal error on a single path. The space is the
// branch of the path's space in which the error is reachable.
type StateError struct {
	Message string
	Space   Space
}

// NewStateError returns a new instance of StateError.
func NewStateError(space Space, format string, args ...interface{}) *StateError {
	return &StateError{Message: fmt.Sprintf(format, args...), Space: space}
}

// Error returns the error message.
func (e *StateError) Error() string {
	return e.Message
}

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}

// idComparer orders integer identifiers. Implements immutable.Comparer.
type idComparer[K ~int] struct{}

// Compare returns -1 if a is less than b, returns 1 if a is greater than b, and
// returns 0 if a is equal to b.
func (idComparer[K]) Compare(a, b K) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
