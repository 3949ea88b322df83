package constants

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// File upload constants
const (
	// MaxUploadSize is the maximum query image upload size in bytes (32MB)
	MaxUploadSize = 32 << 20
)

// Job retention constants
const (
	// MaxFinishedJobs is the number of finished rebuild jobs kept for status queries
	MaxFinishedJobs = 20
)
