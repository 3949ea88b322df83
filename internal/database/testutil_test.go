package database

import (
	"context"
	"math"
	"testing"
)

// unit builds a normalized vector of dim components pointing mostly along axis,
// tilted by tilt towards the next axis.
func unit(t *testing.T, dim, axis int, tilt float32) []float32 {
	t.Helper()
	v := make([]float32, dim)
	v[axis%dim] = 1
	v[(axis+1)%dim] = tilt
	n, err := Normalize(v)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	return n
}

// sampleEntries returns three entries on distinct axes of a 4-dim space.
func sampleEntries(t *testing.T) []ReferenceEntry {
	t.Helper()
	return []ReferenceEntry{
		{Label: "alice", Embedding: unit(t, 4, 0, 0), Source: "alice/1.jpg"},
		{Label: "bob", Embedding: unit(t, 4, 1, 0), Source: "bob/1.jpg"},
		{Label: "alice", Embedding: unit(t, 4, 0, 0.2), Source: "alice/2.jpg"},
	}
}

// exerciseIndex runs the behaviour every Index implementation must share.
func exerciseIndex(t *testing.T, idx Index) {
	t.Helper()
	ctx := context.Background()

	hits, err := idx.Search(ctx, unit(t, 4, 0, 0), 1)
	if err != nil {
		t.Fatalf("Search on empty index failed: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits on empty index, got %d", len(hits))
	}

	if err := idx.Replace(ctx, sampleEntries(t)); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	count, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 entries, got %d", count)
	}

	labels, err := idx.Labels(ctx)
	if err != nil {
		t.Fatalf("Labels failed: %v", err)
	}
	if len(labels) != 3 || labels[0] != "alice" || labels[1] != "bob" || labels[2] != "alice" {
		t.Errorf("unexpected labels %v", labels)
	}

	hits, err = idx.Search(ctx, unit(t, 4, 1, 0), 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Entry.Label != "bob" {
		t.Errorf("expected best hit 'bob', got '%s'", hits[0].Entry.Label)
	}
	if math.Abs(hits[0].Score-1) > 1e-4 {
		t.Errorf("expected score ~1.0 for identical vector, got %v", hits[0].Score)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("hits not ordered by score: %v < %v", hits[0].Score, hits[1].Score)
	}

	hits, err = idx.Search(ctx, unit(t, 4, 0, 0), 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 3 {
		t.Errorf("expected k to be capped at 3, got %d hits", len(hits))
	}

	if err := idx.Replace(ctx, nil); err != nil {
		t.Fatalf("Replace with no entries failed: %v", err)
	}
	count, err = idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty index after replace, got %d", count)
	}
}
