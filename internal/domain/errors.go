package domain

import "errors"

// Input errors abort a run before any output is written.
var (
	ErrMissingInput     = errors.New("missing input")
	ErrVariableNotFound = errors.New("variable not found")
	ErrInvalidCountry   = errors.New("invalid country code")
	ErrInvalidAdmLevel  = errors.New("invalid administrative level")
)

// ErrBoundaryService wraps network and decoding failures of the boundary
// service. Callers may retry the run; the region set is undefined when it is returned.
var ErrBoundaryService = errors.New("boundary service")

// ErrAxisMismatch is returned when a region's series does not line up with
// the established timestep axis.
var ErrAxisMismatch = errors.New("timestep axis mismatch")
