package database

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// FlatIndex is an exact brute-force inner-product index held in memory.
// It persists to a binary vector file and a plain-text label list whose lines are
// aligned with the vector rows.
type FlatIndex struct {
	mu         sync.RWMutex
	dim        int
	entries    []ReferenceEntry
	path       string
	labelsPath string
	logger     *slog.Logger
}

// NewFlatIndex creates an empty in-memory index. Empty paths disable persistence.
func NewFlatIndex(path, labelsPath string, dim int, logger *slog.Logger) *FlatIndex {
	return &FlatIndex{
		dim:        dim,
		path:       path,
		labelsPath: labelsPath,
		logger:     logger,
	}
}

// OpenFlatIndex creates the index and loads persisted state when both files exist.
func OpenFlatIndex(path, labelsPath string, dim int, logger *slog.Logger) (*FlatIndex, error) {
	idx := NewFlatIndex(path, labelsPath, dim, logger)
	if path == "" || labelsPath == "" {
		return idx, nil
	}

	indexExists, err := fileExists(path)
	if err != nil {
		return nil, err
	}
	labelsExist, err := fileExists(labelsPath)
	if err != nil {
		return nil, err
	}

	switch {
	case !indexExists && !labelsExist:
		logger.Debug("no persisted flat index", "path", path)
		return idx, nil
	case indexExists != labelsExist:
		return nil, fmt.Errorf("incomplete index state: %s exists=%t, %s exists=%t", path, indexExists, labelsPath, labelsExist)
	}

	if err := idx.load(); err != nil {
		return nil, err
	}
	logger.Info("loaded flat index", "path", path, "entries", len(idx.entries))
	return idx, nil
}

// Backend returns the registry name.
func (f *FlatIndex) Backend() string { return BackendFlat }

// Replace swaps the index content and persists it.
func (f *FlatIndex) Replace(_ context.Context, entries []ReferenceEntry) error {
	if err := ValidateEntries(entries, f.dim); err != nil {
		return err
	}
	for _, e := range entries {
		if strings.ContainsAny(e.Label, "\r\n") {
			return fmt.Errorf("label %q contains a line break", e.Label)
		}
	}

	replaced := slices.Clone(entries)
	AssignIDs(replaced)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.save(replaced); err != nil {
		return err
	}
	f.entries = replaced
	return nil
}

// Search scans all entries and returns the k best by inner product. Ties keep insertion order.
func (f *FlatIndex) Search(_ context.Context, query []float32, k int) ([]Neighbor, error) {
	if err := ValidateQuery(query, f.dim); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.entries) == 0 || k <= 0 {
		return []Neighbor{}, nil
	}

	hits := make([]Neighbor, len(f.entries))
	for i, e := range f.entries {
		hits[i] = Neighbor{Entry: e, Score: Dot(query, e.Embedding)}
	}
	slices.SortStableFunc(hits, func(a, b Neighbor) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	return hits[:min(k, len(hits))], nil
}

// Count returns the number of entries.
func (f *FlatIndex) Count(_ context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries), nil
}

// Labels returns the labels in insertion order.
func (f *FlatIndex) Labels(_ context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	labels := make([]string, len(f.entries))
	for i, e := range f.entries {
		labels[i] = e.Label
	}
	return labels, nil
}

// Close is a no-op; state is persisted on every Replace.
func (f *FlatIndex) Close() error { return nil }

func (f *FlatIndex) save(entries []ReferenceEntry) error {
	if f.path == "" || f.labelsPath == "" {
		return nil
	}

	var vectors bytes.Buffer
	if err := writeFlatVectors(&vectors, f.dim, entries); err != nil {
		return err
	}
	var labels bytes.Buffer
	for _, e := range entries {
		labels.WriteString(e.Label)
		labels.WriteByte('\n')
	}

	if err := writeFileAtomic(f.path, vectors.Bytes()); err != nil {
		return fmt.Errorf("writing index file: %w", err)
	}
	if err := writeFileAtomic(f.labelsPath, labels.Bytes()); err != nil {
		return fmt.Errorf("writing labels file: %w", err)
	}

	f.logger.Debug("saved flat index", "path", f.path, "labels_path", f.labelsPath, "entries", len(entries))
	return nil
}

func (f *FlatIndex) load() error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("opening index file: %w", err)
	}
	defer file.Close()

	vectors, err := readFlatVectors(bufio.NewReader(file), f.dim)
	if err != nil {
		return fmt.Errorf("reading index file %s: %w", f.path, err)
	}

	labels, err := readLabels(f.labelsPath)
	if err != nil {
		return err
	}
	if len(labels) != len(vectors) {
		return fmt.Errorf("index state mismatch: %d vectors but %d labels", len(vectors), len(labels))
	}

	entries := make([]ReferenceEntry, len(vectors))
	for i := range vectors {
		entries[i] = ReferenceEntry{ID: int64(i + 1), Label: labels[i], Embedding: vectors[i]}
	}
	f.entries = entries
	return nil
}

// writeFlatVectors writes the header (magic, version, dim, count) followed by the
// rows as little-endian float32.
func writeFlatVectors(w io.Writer, dim int, entries []ReferenceEntry) error {
	header := []uint32{flatVersion, uint32(dim), uint32(len(entries))} //nolint:gosec // bounded by memory
	if _, err := io.WriteString(w, flatMagic); err != nil {
		return fmt.Errorf("writing magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, e := range entries {
		if err := binary.Write(w, binary.LittleEndian, e.Embedding); err != nil {
			return fmt.Errorf("writing vector %d: %w", e.ID, err)
		}
	}
	return nil
}

func readFlatVectors(r io.Reader, dim int) ([][]float32, error) {
	magic := make([]byte, len(flatMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if string(magic) != flatMagic {
		return nil, errors.New("not a flat index file")
	}

	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	version, fileDim, count := header[0], int(header[1]), int(header[2])
	if version != flatVersion {
		return nil, fmt.Errorf("unsupported index version %d", version)
	}
	if fileDim != dim {
		return nil, fmt.Errorf("%w: index has %d, configured %d", ErrDimensionMismatch, fileDim, dim)
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("reading vector %d: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func readLabels(path string) ([]string, error) {
	file, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("opening labels file: %w", err)
	}
	defer file.Close()

	var labels []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading labels file: %w", err)
	}
	return labels, nil
}

// writeFileAtomic writes data to a temp file in the target directory and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", path, err)
}
