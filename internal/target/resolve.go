// Package target picks the addressable context a command runs against.
//
// Resolution is a pure function over a snapshot of identifiers taken at
// dispatch time. Nothing is cached between calls: contexts come and go, and
// error messages must reflect what exists right now.
package target

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoTargets is returned when there is nothing to resolve against.
var ErrNoTargets = errors.New("no targets available")

// NotFoundError reports an explicitly requested target that does not exist.
type NotFoundError struct {
	Requested string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Window '%s' not found. Available: %s", e.Requested, strings.Join(e.Available, ", "))
}

// Resolution is the outcome of a successful Resolve.
type Resolution struct {
	ID    string
	Total int
	// Defaulted is true when no target was requested and one was picked.
	Defaulted bool
}

// Warning describes an ambiguous default pick, or "" when there was none.
func (r Resolution) Warning() string {
	if !r.Defaulted || r.Total <= 1 {
		return ""
	}
	return fmt.Sprintf("No target specified; using '%s' of %d available", r.ID, r.Total)
}

// Resolve chooses a concrete target id.
//
// An empty requested id selects focused if it is among available, otherwise
// the first entry of available. available must be in a stable order; callers
// typically sort it.
func Resolve(requested string, available []string, focused string) (Resolution, error) {
	if len(available) == 0 {
		if requested != "" {
			return Resolution{}, &NotFoundError{Requested: requested, Available: []string{}}
		}
		return Resolution{}, ErrNoTargets
	}

	if requested != "" {
		for _, id := range available {
			if id == requested {
				return Resolution{ID: id, Total: len(available)}, nil
			}
		}
		return Resolution{}, &NotFoundError{Requested: requested, Available: append([]string(nil), available...)}
	}

	if focused != "" {
		for _, id := range available {
			if id == focused {
				return Resolution{ID: id, Total: len(available), Defaulted: true}, nil
			}
		}
	}
	return Resolution{ID: available[0], Total: len(available), Defaulted: true}, nil
}
