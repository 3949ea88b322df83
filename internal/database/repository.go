package database

import (
	"context"
)

// Index is a collection of reference face embeddings supporting similarity search.
// All stored vectors are L2-normalized, so inner product equals cosine similarity.
type Index interface {
	// Replace swaps the whole content of the index for entries and persists it.
	// Entries without an ID are numbered 1..N in input order.
	Replace(ctx context.Context, entries []ReferenceEntry) error
	// Search returns up to k entries ordered by descending inner product with query.
	// An empty index yields an empty result and no error.
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)
	// Count returns the number of stored entries
	Count(ctx context.Context) (int, error)
	// Labels returns the label of every stored entry in insertion order
	Labels(ctx context.Context) ([]string, error)
	// Backend returns the registry name of the implementation
	Backend() string
	// Close releases files or connections held by the index
	Close() error
}
