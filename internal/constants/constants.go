// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Search constants
const (
	// DefaultTopK is the number of matches returned when none is requested
	DefaultTopK = 1

	// MaxTopK caps the number of matches a single request may ask for
	MaxTopK = 50
)

// Gallery constants
const (
	// ThumbnailSize is the longest side in pixels of gallery thumbnails
	ThumbnailSize = 150
)
