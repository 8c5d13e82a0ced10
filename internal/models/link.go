package models

import "time"

// Link represents a short link and its associated metadata.
type Link struct {
	// ID is the unique identifier for the link record, assigned by the store.
	ID int64
	// Slug is the short alphanumeric identifier appearing in the short URL's path.
	Slug string
	// DestinationURL is the full URL that the slug redirects to.
	DestinationURL string
	// ClickCount tracks the number of times the short link has been resolved.
	ClickCount int64
	// CreatedAt is the timestamp indicating when the link was created.
	CreatedAt time.Time
	// UpdatedAt is the timestamp indicating when the link was last updated.
	UpdatedAt time.Time
}
