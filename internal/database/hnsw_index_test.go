package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-recognizer/internal/logger"
)

func TestHNSWIndex_Behaviour(t *testing.T) {
	exerciseIndex(t, NewHNSWIndex("", 4, logger.Nop()))
}

func TestHNSWIndex_PersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "faces.hnsw")

	idx, err := OpenHNSWIndex(path, 4, logger.Nop())
	if err != nil {
		t.Fatalf("OpenHNSWIndex failed: %v", err)
	}
	if err := idx.Replace(ctx, sampleEntries(t)); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	for _, suffix := range []string{"", ".entries", ".meta"} {
		if _, err := os.Stat(path + suffix); err != nil {
			t.Errorf("expected file %s to exist: %v", path+suffix, err)
		}
	}

	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		t.Fatalf("LoadHNSWMetadata failed: %v", err)
	}
	if meta.Count != 3 || meta.Dim != 4 || meta.Version != hnswMetadataVersion {
		t.Errorf("unexpected metadata %+v", meta)
	}

	reopened, err := OpenHNSWIndex(path, 4, logger.Nop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	labels, _ := reopened.Labels(ctx)
	if len(labels) != 3 || labels[1] != "bob" {
		t.Errorf("unexpected labels after reload %v", labels)
	}

	hits, err := reopened.Search(ctx, unit(t, 4, 1, 0), 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Entry.Label != "bob" {
		t.Errorf("unexpected hit after reload: %+v", hits)
	}
}

func TestHNSWIndex_EmptyReplaceRemovesFiles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "faces.hnsw")

	idx := NewHNSWIndex(path, 4, logger.Nop())
	if err := idx.Replace(ctx, sampleEntries(t)); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if err := idx.Replace(ctx, nil); err != nil {
		t.Fatalf("Replace with no entries failed: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected index file to be removed, stat err: %v", err)
	}

	reopened, err := OpenHNSWIndex(path, 4, logger.Nop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if count, _ := reopened.Count(ctx); count != 0 {
		t.Errorf("expected empty index, got %d", count)
	}
}

func TestHNSWIndex_DimensionMismatchOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.hnsw")
	idx := NewHNSWIndex(path, 4, logger.Nop())
	if err := idx.Replace(context.Background(), sampleEntries(t)); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	if _, err := OpenHNSWIndex(path, 8, logger.Nop()); err == nil {
		t.Error("expected error when configured dimension differs")
	}
}

func TestHNSWIndex_FailedSaveKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("failed to write blocker file: %v", err)
	}

	idx := NewHNSWIndex(filepath.Join(blocker, "faces.hnsw"), 4, logger.Nop())
	if err := idx.Replace(ctx, sampleEntries(t)); err == nil {
		t.Fatal("expected Replace to fail when the index directory cannot be created")
	}

	if count, _ := idx.Count(ctx); count != 0 {
		t.Errorf("expected failed Replace to leave the index empty, got %d entries", count)
	}
	hits, err := idx.Search(ctx, unit(t, 4, 1, 0), 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits after failed Replace, got %+v", hits)
	}
}
