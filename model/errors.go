package model

import "errors"

var (
	// ErrInvalidArgument indicates a caller passed an argument the contract
	// rejects: duplicate identities, unknown scenes, unknown object types.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConfiguration indicates a configuration source or payload could not be
	// resolved, parsed or validated. Loader errors are wrapped, not replaced.
	ErrConfiguration = errors.New("configuration error")
)
