package employee

import "errors"

var (
	ErrInvalidID        = errors.New("employee: invalid id")
	ErrNothingToUpdate  = errors.New("employee: nothing to update")
	ErrEmployeeNotFound = errors.New("employee: not found")
)
