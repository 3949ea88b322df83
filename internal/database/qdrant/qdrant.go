// Package qdrant keeps reference face embeddings in a Qdrant collection.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/database"
)

const (
	payloadLabel  = "label"
	payloadSource = "source"

	// upsertBatchSize bounds the number of points sent per Upsert call.
	upsertBatchSize = 256
	// scrollPageSize is the page size used when listing labels.
	scrollPageSize = 1024
)

func init() {
	database.RegisterBackend(database.BackendQdrant, func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (database.Index, error) {
		return Open(ctx, Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
			Dimensions: cfg.Embedding.Dim,
		}, logger)
	})
}

// Config holds connection settings for the Qdrant gRPC API.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int
}

// Index implements database.Index on a Qdrant collection using Dot distance.
type Index struct {
	client     *qdrant.Client
	collection string
	dim        int
	logger     *slog.Logger
}

// Open connects to Qdrant and makes sure the collection exists.
func Open(ctx context.Context, c Config, logger *slog.Logger) (*Index, error) {
	if c.Host == "" {
		return nil, errors.New("qdrant host is required")
	}
	if c.Collection == "" {
		return nil, errors.New("qdrant collection is required")
	}
	if c.Dimensions <= 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions must be positive, got %d", c.Dimensions)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   c.Port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	idx := &Index{
		client:     client,
		collection: c.Collection,
		dim:        c.Dimensions,
		logger:     logger,
	}

	exists, err := client.CollectionExists(ctx, c.Collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("checking collection %s: %w", c.Collection, err)
	}
	if !exists {
		if err := idx.createCollection(ctx); err != nil {
			client.Close()
			return nil, err
		}
	}

	logger.Info("qdrant index opened", "host", c.Host, "port", c.Port, "collection", c.Collection)
	return idx, nil
}

func (x *Index) createCollection(ctx context.Context) error {
	err := x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(x.dim), //nolint:gosec // validated positive
			Distance: qdrant.Distance_Dot,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", x.collection, err)
	}
	return nil
}

// Backend returns the registry name.
func (x *Index) Backend() string { return database.BackendQdrant }

// Replace drops and recreates the collection, then upserts entries keyed by their IDs.
func (x *Index) Replace(ctx context.Context, entries []database.ReferenceEntry) error {
	if err := database.ValidateEntries(entries, x.dim); err != nil {
		return err
	}
	entries = append([]database.ReferenceEntry(nil), entries...)
	database.AssignIDs(entries)

	exists, err := x.client.CollectionExists(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", x.collection, err)
	}
	if exists {
		if err := x.client.DeleteCollection(ctx, x.collection); err != nil {
			return fmt.Errorf("deleting collection %s: %w", x.collection, err)
		}
	}
	if err := x.createCollection(ctx); err != nil {
		return err
	}

	points := toPoints(entries)
	for start := 0; start < len(points); start += upsertBatchSize {
		batch := points[start:min(start+upsertBatchSize, len(points))]
		if _, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: x.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         batch,
		}); err != nil {
			return fmt.Errorf("upserting points %d-%d: %w", start, start+len(batch), err)
		}
	}

	x.logger.Debug("replaced qdrant collection", "collection", x.collection, "count", len(entries))
	return nil
}

// Search queries the collection; Qdrant's Dot score is the inner product.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]database.Neighbor, error) {
	if err := database.ValidateQuery(query, x.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []database.Neighbor{}, nil
	}

	points, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: x.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)), //nolint:gosec // k > 0
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", x.collection, err)
	}

	results := make([]database.Neighbor, 0, len(points))
	for _, p := range points {
		results = append(results, neighborFromPoint(p))
	}
	return results, nil
}

// Count returns the exact number of points in the collection.
func (x *Index) Count(ctx context.Context) (int, error) {
	count, err := x.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: x.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(count), nil //nolint:gosec // bounded by collection size
}

// Labels scrolls through the collection in ID order.
func (x *Index) Labels(ctx context.Context) ([]string, error) {
	var labels []string
	var offset *qdrant.PointId
	for {
		points, next, err := x.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: x.collection,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qdrant.NewWithPayloadInclude(payloadLabel),
		})
		if err != nil {
			return nil, fmt.Errorf("scrolling points: %w", err)
		}
		for _, p := range points {
			labels = append(labels, p.GetPayload()[payloadLabel].GetStringValue())
		}
		if next == nil {
			return labels, nil
		}
		offset = next
	}
}

// Close closes the gRPC connection.
func (x *Index) Close() error {
	if err := x.client.Close(); err != nil {
		return fmt.Errorf("closing qdrant client: %w", err)
	}
	return nil
}

func toPoints(entries []database.ReferenceEntry) []*qdrant.PointStruct {
	points := make([]*qdrant.PointStruct, len(entries))
	for i, e := range entries {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(e.ID)), //nolint:gosec // IDs are positive
			Vectors: qdrant.NewVectors(e.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadLabel:  e.Label,
				payloadSource: e.Source,
			}),
		}
	}
	return points
}

func neighborFromPoint(p *qdrant.ScoredPoint) database.Neighbor {
	payload := p.GetPayload()
	return database.Neighbor{
		Entry: database.ReferenceEntry{
			ID:     int64(p.GetId().GetNum()), //nolint:gosec // IDs are assigned from int64
			Label:  payload[payloadLabel].GetStringValue(),
			Source: payload[payloadSource].GetStringValue(),
		},
		Score: float64(p.GetScore()),
	}
}
