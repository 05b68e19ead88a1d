package domain

import "errors"

var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness constraint was violated, e.g. an email already in use.
	ErrDuplicate = errors.New("already exists")
	// ErrInvalidReference indicates a write referenced an entity that does not exist,
	// e.g. creating a group for an unknown owner.
	ErrInvalidReference = errors.New("referenced entity does not exist")
)
