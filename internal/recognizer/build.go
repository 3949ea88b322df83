package recognizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-recognizer/internal/database"
	"github.com/kozaktomas/face-recognizer/internal/dataset"
	"github.com/kozaktomas/face-recognizer/internal/embedding"
)

// ProgressFunc is called after each dataset image has been processed.
type ProgressFunc func(processed, total int, path string)

// BuildOption customizes a single BuildIndex call.
type BuildOption func(*buildConfig)

type buildConfig struct {
	workers  int
	progress ProgressFunc
}

// WithProgress reports per-image progress.
func WithProgress(fn ProgressFunc) BuildOption {
	return func(c *buildConfig) {
		c.progress = fn
	}
}

// WithWorkers overrides the configured number of parallel extractions.
func WithWorkers(n int) BuildOption {
	return func(c *buildConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// SkippedImage is a dataset image that contributed no entry.
type SkippedImage struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// BuildReport describes a finished rebuild.
type BuildReport struct {
	BuildID    string         `json:"build_id"`
	Backend    string         `json:"backend"`
	Identities int            `json:"identities"`
	Images     int            `json:"images"`
	Faces      int            `json:"faces"`
	Skipped    []SkippedImage `json:"skipped"`
	Duration   time.Duration  `json:"duration"`
}

// extraction is the outcome for one dataset image, stored in its original slot.
type extraction struct {
	vec     []float32
	skipped string
}

// BuildIndex scans the dataset, extracts one embedding per image and replaces the index
// content. Images without a usable face are skipped and listed in the report. A missing
// dataset, embedding service failures and backend failures abort the build.
// Entries are added in dataset order (identity folders, then files, both sorted) even
// when several workers are used.
func (f *FaceDB) BuildIndex(ctx context.Context, opts ...BuildOption) (*BuildReport, error) {
	cfg := buildConfig{workers: f.opts.Workers}
	for _, opt := range opts {
		opt(&cfg)
	}

	f.buildMu.Lock()
	defer f.buildMu.Unlock()

	start := time.Now()
	buildID := uuid.New().String()
	logger := f.logger.With("build_id", buildID)

	ds, err := dataset.Scan(f.opts.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("scanning dataset: %w", err)
	}
	images := ds.Images()
	logger.Info("building index", "dataset", f.opts.DatasetPath, "identities", len(ds.Identities()),
		"images", len(images), "workers", cfg.workers)

	results, err := f.extractAll(ctx, images, cfg)
	if err != nil {
		return nil, err
	}

	report := &BuildReport{
		BuildID:    buildID,
		Backend:    f.index.Backend(),
		Identities: len(ds.Identities()),
		Images:     len(images),
		Skipped:    []SkippedImage{},
	}

	entries := make([]database.ReferenceEntry, 0, len(images))
	for i, img := range images {
		r := results[i]
		if r.skipped != "" {
			logger.Warn("skipping image", "path", img.Path, "reason", r.skipped)
			report.Skipped = append(report.Skipped, SkippedImage{Path: img.Path, Reason: r.skipped})
			continue
		}
		entries = append(entries, database.ReferenceEntry{
			Label:     img.Identity,
			Embedding: r.vec,
			Source:    filepath.ToSlash(filepath.Join(img.Identity, img.Name)),
		})
		logger.Debug("added embedding", "identity", img.Identity, "path", img.Path)
	}

	// A cancelled build must not replace the index, even after extraction finished.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}

	f.mu.Lock()
	err = f.index.Replace(ctx, entries)
	f.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("replacing index: %w", err)
	}

	report.Faces = len(entries)
	report.Duration = time.Since(start)
	logger.Info("index built", "faces", report.Faces, "skipped", len(report.Skipped), "duration", report.Duration)
	return report, nil
}

// extractAll runs extractions with a bounded worker pool. Results keep the order of images.
// The first hard error cancels the remaining work.
func (f *FaceDB) extractAll(ctx context.Context, images []dataset.Image, cfg buildConfig) ([]extraction, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]extraction, len(images))
	sem := make(chan struct{}, cfg.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	processed := 0

	for i, img := range images {
		wg.Add(1)
		go func(i int, img dataset.Image) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			res, err := f.extractOne(ctx, img.Path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("processing %s: %w", img.Path, err)
					cancel()
				}
				return
			}
			results[i] = res
			processed++
			if cfg.progress != nil {
				cfg.progress(processed, len(images), img.Path)
			}
		}(i, img)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}
	return results, nil
}

func (f *FaceDB) extractOne(ctx context.Context, path string) (extraction, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the dataset scan
	if err != nil {
		return extraction{skipped: fmt.Sprintf("unreadable file: %v", err)}, nil
	}

	vec, err := f.extractor.Extract(ctx, data)
	if err != nil {
		if embedding.IsAbsent(err) {
			return extraction{skipped: err.Error()}, nil
		}
		return extraction{}, err
	}
	return extraction{vec: vec}, nil
}
