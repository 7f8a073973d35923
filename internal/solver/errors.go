package solver

import "errors"

var (
	// ErrMalformedOutput is returned when knife solve prints a line that is not
	// "name version".
	ErrMalformedOutput = errors.New("malformed knife solve output")
	// ErrInvalidTarget is returned when the role or environment is empty.
	ErrInvalidTarget = errors.New("role and environment must not be empty")
)
