package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrOperatorRequired indicates a staff action arrived without an operator identity.
	ErrOperatorRequired = errors.New("operator identity required")
)
