package database

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrZeroNorm is returned when normalizing a zero vector.
	ErrZeroNorm = errors.New("cannot normalize zero vector")
)

// unitTolerance is the allowed deviation of a stored vector norm from 1.
const unitTolerance = 1e-3

// Dot returns the inner product of a and b, accumulated in float64.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range min(len(a), len(b)) {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	return math.Sqrt(Dot(v, v))
}

// Normalize returns a unit-length copy of v. A zero vector cannot be normalized.
func Normalize(v []float32) ([]float32, error) {
	n := Norm(v)
	if n == 0 {
		return nil, ErrZeroNorm
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out, nil
}

// IsUnit reports whether v has unit L2 norm within tolerance.
func IsUnit(v []float32) bool {
	return math.Abs(Norm(v)-1) <= unitTolerance
}

// ValidateEntries checks that every entry has the given dimension and unit norm.
func ValidateEntries(entries []ReferenceEntry, dim int) error {
	for i, e := range entries {
		if len(e.Embedding) != dim {
			return fmt.Errorf("entry %d (%s): %w: got %d, want %d", i, e.Label, ErrDimensionMismatch, len(e.Embedding), dim)
		}
		if !IsUnit(e.Embedding) {
			return fmt.Errorf("entry %d (%s): embedding is not normalized (norm %.4f)", i, e.Label, Norm(e.Embedding))
		}
	}
	return nil
}

// ValidateQuery checks the query dimension.
func ValidateQuery(query []float32, dim int) error {
	if len(query) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), dim)
	}
	return nil
}
