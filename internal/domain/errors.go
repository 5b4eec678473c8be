package domain

import "errors"

var (
	// ErrValidation marks malformed or missing request input. No store is
	// mutated when it is returned.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an entity absent at the point it was checked.
	ErrNotFound = errors.New("not found")
	// ErrNamespaceNotFound is returned when an operation names a namespace
	// that does not exist or is not active.
	ErrNamespaceNotFound = errors.New("namespace not found")
	// ErrConsistencyFault means the metadata store and the blob store disagree
	// about an object: a row is present but the blob is missing or unreadable.
	ErrConsistencyFault = errors.New("object store consistency fault")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrAlreadyExists    = errors.New("already exists")
)
