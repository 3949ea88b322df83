// Package recognizer is the face index façade: it builds the reference index from a
// folder-per-identity dataset and answers "who is in this image" queries.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/kozaktomas/face-recognizer/internal/database"
	"github.com/kozaktomas/face-recognizer/internal/embedding"
)

// UnknownLabel is returned in place of the top-k matches when the best score is below
// the threshold.
const UnknownLabel = "unknown"

// DefaultThreshold is the minimum cosine similarity for a known identity.
const DefaultThreshold = 0.5

// Options configure a FaceDB.
type Options struct {
	Threshold   float64 // minimum similarity for a known identity, within [-1, 1]
	DatasetPath string  // dataset/<identity>/<image files>
	Workers     int     // parallel extractions during BuildIndex, defaults to 1
}

// Match is one search result. Known is false only for the UnknownLabel placeholder, so
// an identity folder that happens to be named "unknown" is still reported as known.
type Match struct {
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
	Known  bool    `json:"known"`
	Source string  `json:"source,omitempty"`
}

// FaceDB ties an embedding extractor to a vector index. It is safe for concurrent use:
// searches share a read lock, swapping the index content takes the write lock.
type FaceDB struct {
	extractor embedding.Extractor
	index     database.Index
	opts      Options
	logger    *slog.Logger

	mu      sync.RWMutex // guards index content against concurrent Replace
	buildMu sync.Mutex   // serializes BuildIndex calls
}

// New validates opts and returns a FaceDB.
func New(opts Options, extractor embedding.Extractor, index database.Index, logger *slog.Logger) (*FaceDB, error) {
	if extractor == nil {
		return nil, errors.New("embedding extractor is required")
	}
	if index == nil {
		return nil, errors.New("index is required")
	}
	if opts.Threshold < -1 || opts.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be within [-1, 1], got %v", opts.Threshold)
	}
	if opts.DatasetPath == "" {
		return nil, errors.New("dataset path is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FaceDB{
		extractor: extractor,
		index:     index,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Threshold returns the similarity threshold.
func (f *FaceDB) Threshold() float64 {
	return f.opts.Threshold
}

// DatasetPath returns the dataset root.
func (f *FaceDB) DatasetPath() string {
	return f.opts.DatasetPath
}

// Backend returns the name of the index backend.
func (f *FaceDB) Backend() string {
	return f.index.Backend()
}

// Count returns the number of indexed reference faces.
func (f *FaceDB) Count(ctx context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.index.Count(ctx)
}

// Close closes the underlying index.
func (f *FaceDB) Close() error {
	return f.index.Close()
}

// Search identifies the first face in image. It returns nil when the image has no
// usable face or the index is empty. When the best score is below the threshold the
// result is a single UnknownLabel match carrying that score; otherwise up to k matches
// ordered by descending score. k <= 0 means 1.
func (f *FaceDB) Search(ctx context.Context, image []byte, k int) ([]Match, error) {
	if k <= 0 {
		k = 1
	}

	vec, err := f.extractor.Extract(ctx, image)
	if err != nil {
		if embedding.IsAbsent(err) {
			f.logger.Debug("no usable face in query image", "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("extracting query embedding: %w", err)
	}

	f.mu.RLock()
	hits, err := f.index.Search(ctx, vec, k)
	f.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	best := hits[0].Score
	if best < f.opts.Threshold {
		f.logger.Debug("best match below threshold", "label", hits[0].Entry.Label, "score", best, "threshold", f.opts.Threshold)
		return []Match{{Label: UnknownLabel, Score: best}}, nil
	}

	matches := make([]Match, len(hits))
	for i, h := range hits {
		matches[i] = Match{Label: h.Entry.Label, Score: h.Score, Known: true, Source: h.Entry.Source}
	}
	return matches, nil
}

// SearchFile reads path and calls Search. An unreadable file yields no match.
func (f *FaceDB) SearchFile(ctx context.Context, path string, k int) ([]Match, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied query image
	if err != nil {
		f.logger.Warn("cannot read query image", "path", path, "error", err)
		return nil, nil
	}
	return f.Search(ctx, data, k)
}

// PersonCount is the number of reference faces stored for one label.
type PersonCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Stats summarizes the index content.
type Stats struct {
	Backend    string        `json:"backend"`
	TotalFaces int           `json:"total_faces"`
	Persons    []PersonCount `json:"persons"`
}

// Stats returns the total face count and the per-person counts sorted by label.
func (f *FaceDB) Stats(ctx context.Context) (*Stats, error) {
	f.mu.RLock()
	labels, err := f.index.Labels(ctx)
	f.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("listing labels: %w", err)
	}

	counts := make(map[string]int)
	for _, l := range labels {
		counts[l]++
	}
	persons := make([]PersonCount, 0, len(counts))
	for label, n := range counts {
		persons = append(persons, PersonCount{Label: label, Count: n})
	}
	sort.Slice(persons, func(i, j int) bool { return persons[i].Label < persons[j].Label })

	return &Stats{
		Backend:    f.index.Backend(),
		TotalFaces: len(labels),
		Persons:    persons,
	}, nil
}
