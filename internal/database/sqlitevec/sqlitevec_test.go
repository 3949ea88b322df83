package sqlitevec

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-recognizer/internal/database"
	"github.com/kozaktomas/face-recognizer/internal/logger"
)

func entries() []database.ReferenceEntry {
	return []database.ReferenceEntry{
		{Label: "alice", Embedding: []float32{1, 0, 0, 0}, Source: "alice/1.jpg"},
		{Label: "bob", Embedding: []float32{0, 1, 0, 0}, Source: "bob/1.jpg"},
		{Label: "carol", Embedding: []float32{0, 0, 0.6, 0.8}, Source: "carol/1.jpg"},
	}
}

func TestOpen_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Config{DBPath: "", Dimensions: 4}, logger.Nop()); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := Open(ctx, Config{DBPath: ":memory:"}, logger.Nop()); err == nil {
		t.Error("expected error for zero dimensions")
	}
}

func TestIndex_ReplaceAndSearch(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(ctx, Config{DBPath: ":memory:", Dimensions: 4}, logger.Nop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer idx.Close()

	hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search on empty index failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}

	if err := idx.Replace(ctx, entries()); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	hits, err = idx.Search(ctx, []float32{0, 0, 0.6, 0.8}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Entry.Label != "carol" || hits[0].Entry.ID != 3 {
		t.Errorf("expected carol (id 3), got %+v", hits[0].Entry)
	}
	if math.Abs(hits[0].Score-1) > 1e-5 {
		t.Errorf("expected score ~1, got %v", hits[0].Score)
	}
	if hits[0].Entry.Source != "carol/1.jpg" {
		t.Errorf("unexpected source %s", hits[0].Entry.Source)
	}

	labels, err := idx.Labels(ctx)
	if err != nil {
		t.Fatalf("Labels failed: %v", err)
	}
	if len(labels) != 3 || labels[0] != "alice" || labels[2] != "carol" {
		t.Errorf("unexpected labels %v", labels)
	}

	// A second rebuild replaces rather than appends.
	if err := idx.Replace(ctx, entries()[:1]); err != nil {
		t.Fatalf("second Replace failed: %v", err)
	}
	count, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 entry after replace, got %d", count)
	}
}

func TestIndex_PersistsToFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "faces.db")

	idx, err := Open(ctx, Config{DBPath: path, Dimensions: 4}, logger.Nop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := idx.Replace(ctx, entries()); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(ctx, Config{DBPath: path, Dimensions: 4}, logger.Nop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	count, err := reopened.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 entries after reopen, got %d", count)
	}
}

func TestDeserializeFloat32(t *testing.T) {
	if _, err := deserializeFloat32([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for blob length not divisible by 4")
	}
	v, err := deserializeFloat32([]byte{0, 0, 128, 63})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 1 || v[0] != 1 {
		t.Errorf("expected [1], got %v", v)
	}
}
