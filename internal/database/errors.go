package database

import "errors"

var (
	// ErrSlugExists is returned when an attempt is made to insert
	// a link with a slug that is already taken.
	ErrSlugExists = errors.New("slug exists")
	// ErrLinkNotFound is returned when an attempt is made to retrieve
	// or mutate a link that doesn't exist.
	ErrLinkNotFound = errors.New("link not found")
)
