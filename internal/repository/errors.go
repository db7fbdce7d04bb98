package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when a write would violate a uniqueness rule,
	// including the one-outstanding-ride and one-active-ride rules.
	ErrDuplicate = errors.New("entity already exists")

	// ErrConditionFailed is returned when a conditional update matched zero rows.
	ErrConditionFailed = errors.New("condition not met")
)
