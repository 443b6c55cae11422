// Package common defines sentinel errors and small helpers shared by the
// bridge packages. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Validation errors.
	ErrorInvalidArgument = errors.New("invalid argument")
)
