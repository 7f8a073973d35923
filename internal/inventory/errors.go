package inventory

import "errors"

var (
	// ErrUnparsableCommand is returned when a package command does not carry
	// "-o role[<role>] -E <environment>".
	ErrUnparsableCommand = errors.New("cannot parse role and environment from package command")
	// ErrInvalidAppliance is returned for an empty appliance name.
	ErrInvalidAppliance = errors.New("appliance name must not be empty")
)
