package repository

import "errors"

// Sentinel kinds for registry errors.
var (
	ErrNotFound       = errors.New("project not found")
	ErrMissingID      = errors.New("project id must not be empty")
	ErrDuplicateField = errors.New("duplicate field id in project")
)
