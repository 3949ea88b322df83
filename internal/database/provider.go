package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/kozaktomas/face-recognizer/internal/config"
)

// ErrUnknownBackend is returned by Open when the configured backend is not registered.
var ErrUnknownBackend = errors.New("unknown index backend")

// OpenFunc constructs an Index from configuration.
type OpenFunc func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Index, error)

var (
	backends   = make(map[string]OpenFunc)
	backendsMu sync.RWMutex
)

// RegisterBackend registers an index constructor under name.
// Backends living in subpackages call this from init to avoid import cycles.
func RegisterBackend(name string, open OpenFunc) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[strings.ToLower(name)] = open
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs the index selected by cfg.Index.Backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Index, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Index.Backend))
	if name == "" {
		name = BackendFlat
	}

	backendsMu.RLock()
	open, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownBackend, name, strings.Join(Backends(), ", "))
	}

	idx, err := open(ctx, cfg, logger.With("backend", name))
	if err != nil {
		return nil, fmt.Errorf("opening %s index: %w", name, err)
	}
	return idx, nil
}

func init() {
	RegisterBackend(BackendFlat, func(_ context.Context, cfg *config.Config, logger *slog.Logger) (Index, error) {
		return OpenFlatIndex(cfg.Index.Path, cfg.Index.LabelsPath, cfg.Embedding.Dim, logger)
	})
	RegisterBackend(BackendHNSW, func(_ context.Context, cfg *config.Config, logger *slog.Logger) (Index, error) {
		return OpenHNSWIndex(cfg.Index.Path, cfg.Embedding.Dim, logger)
	})
}
