package database

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata is written next to the exported graph.
type HNSWIndexMetadata struct {
	Count     int       `json:"count"`
	Dim       int       `json:"dim"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"` // For future compatibility
}

const hnswMetadataVersion = 1

// HNSWIndex is an approximate index on a coder/hnsw graph. Candidates are re-scored
// with the exact inner product before being returned.
type HNSWIndex struct {
	mu      sync.RWMutex
	dim     int
	graph   *hnsw.Graph[int64]
	entries map[int64]ReferenceEntry // Maps HNSW node ID to entry
	order   []int64                  // insertion order of IDs
	path    string
	logger  *slog.Logger
}

// NewHNSWIndex creates an empty index. An empty path disables persistence.
func NewHNSWIndex(path string, dim int, logger *slog.Logger) *HNSWIndex {
	return &HNSWIndex{
		dim:     dim,
		entries: make(map[int64]ReferenceEntry),
		path:    path,
		logger:  logger,
	}
}

// OpenHNSWIndex creates the index and loads the exported graph with its sidecars if present.
func OpenHNSWIndex(path string, dim int, logger *slog.Logger) (*HNSWIndex, error) {
	h := NewHNSWIndex(path, dim, logger)
	if path == "" {
		return h, nil
	}

	exists, err := fileExists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		logger.Debug("no persisted HNSW index", "path", path)
		return h, nil
	}

	if err := h.load(); err != nil {
		return nil, err
	}
	logger.Info("loaded HNSW index", "path", path, "entries", len(h.order))
	return h, nil
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Backend returns the registry name.
func (h *HNSWIndex) Backend() string { return BackendHNSW }

// Replace builds a fresh graph from entries and persists it.
func (h *HNSWIndex) Replace(_ context.Context, entries []ReferenceEntry) error {
	if err := ValidateEntries(entries, h.dim); err != nil {
		return err
	}

	replaced := slices.Clone(entries)
	AssignIDs(replaced)

	var g *hnsw.Graph[int64]
	byID := make(map[int64]ReferenceEntry, len(replaced))
	order := make([]int64, 0, len(replaced))
	if len(replaced) > 0 {
		g = newGraph()
		for _, e := range replaced {
			if _, dup := byID[e.ID]; dup {
				return fmt.Errorf("duplicate entry ID %d", e.ID)
			}
			g.Add(hnsw.MakeNode(e.ID, e.Embedding))
			byID[e.ID] = e
			order = append(order, e.ID)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.save(g, byID, order); err != nil {
		return err
	}
	h.graph = g
	h.entries = byID
	h.order = order
	return nil
}

// Search asks the graph for HNSWSearchMultiplier*k candidates and returns the k best
// by exact inner product.
func (h *HNSWIndex) Search(_ context.Context, query []float32, k int) ([]Neighbor, error) {
	if err := ValidateQuery(query, h.dim); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || len(h.order) == 0 || k <= 0 {
		return []Neighbor{}, nil
	}

	nodes := h.graph.Search(query, min(k*HNSWSearchMultiplier, len(h.order)))
	hits := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		e, ok := h.entries[n.Key]
		if !ok {
			continue
		}
		hits = append(hits, Neighbor{Entry: e, Score: Dot(query, e.Embedding)})
	}
	slices.SortStableFunc(hits, func(a, b Neighbor) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return int(a.Entry.ID - b.Entry.ID)
	})

	return hits[:min(k, len(hits))], nil
}

// Count returns the number of indexed entries.
func (h *HNSWIndex) Count(_ context.Context) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.order), nil
}

// Labels returns the labels in insertion order.
func (h *HNSWIndex) Labels(_ context.Context) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	labels := make([]string, len(h.order))
	for i, id := range h.order {
		labels[i] = h.entries[id].Label
	}
	return labels, nil
}

// Close is a no-op; state is persisted on every Replace.
func (h *HNSWIndex) Close() error { return nil }

// save writes the given state to disk. It must be called with h.mu held.
func (h *HNSWIndex) save(g *hnsw.Graph[int64], byID map[int64]ReferenceEntry, order []int64) error {
	if h.path == "" {
		return nil
	}

	if g == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(h.path)
		_ = os.Remove(h.path + ".meta")
		_ = os.Remove(h.path + ".entries")
		h.logger.Debug("HNSW index empty, removed files", "path", h.path)
		return nil
	}

	var graph bytes.Buffer
	if err := g.Export(&graph); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	if err := writeFileAtomic(h.path, graph.Bytes()); err != nil {
		return fmt.Errorf("writing HNSW index file: %w", err)
	}

	entries := make([]ReferenceEntry, len(order))
	for i, id := range order {
		entries[i] = byID[id]
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}
	if err := writeFileAtomic(h.path+".entries", buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write entries file: %w", err)
	}

	metaData, err := json.Marshal(HNSWIndexMetadata{
		Count:     len(entries),
		Dim:       h.dim,
		BuildTime: time.Now().UTC(),
		Version:   hnswMetadataVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := writeFileAtomic(h.path+".meta", metaData); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	h.logger.Debug("saved HNSW index", "path", h.path, "entries", len(entries))
	return nil
}

func (h *HNSWIndex) load() error {
	meta, err := LoadHNSWMetadata(h.path)
	if err != nil {
		return err
	}
	if meta.Dim != h.dim {
		return fmt.Errorf("%w: index has %d, configured %d", ErrDimensionMismatch, meta.Dim, h.dim)
	}

	saved, err := hnsw.LoadSavedGraph[int64](h.path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	data, err := os.ReadFile(h.path + ".entries")
	if err != nil {
		return fmt.Errorf("failed to read entries file: %w", err)
	}
	var entries []ReferenceEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode entries: %w", err)
	}
	if len(entries) != saved.Len() {
		return fmt.Errorf("index state mismatch: graph has %d nodes but %d entries", saved.Len(), len(entries))
	}

	h.graph = saved.Graph
	h.entries = make(map[int64]ReferenceEntry, len(entries))
	h.order = make([]int64, len(entries))
	for i, e := range entries {
		h.entries[e.ID] = e
		h.order[i] = e.ID
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}

	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return metadata, nil
}
