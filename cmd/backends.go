package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/database"
	"github.com/kozaktomas/face-recognizer/internal/embedding"
	"github.com/kozaktomas/face-recognizer/internal/recognizer"

	// Index backends register themselves with the database package.
	_ "github.com/kozaktomas/face-recognizer/internal/database/postgres"
	_ "github.com/kozaktomas/face-recognizer/internal/database/qdrant"
	_ "github.com/kozaktomas/face-recognizer/internal/database/sqlitevec"
)

// openFaceDB opens the configured index backend and wires it to the embedding client.
func openFaceDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*recognizer.FaceDB, error) {
	index, err := database.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	client := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.Dim)
	logger.Debug("embedding model", "model", client.Model(), "dim", client.Dim(),
		"detector", cfg.GetModelSpec(client.Model()).Detector, "threshold", cfg.Index.Threshold)
	faceDB, err := recognizer.New(recognizer.Options{
		Threshold:   cfg.Index.Threshold,
		DatasetPath: cfg.Dataset.Path,
		Workers:     cfg.Index.Workers,
	}, client, index, logger)
	if err != nil {
		index.Close()
		return nil, err
	}
	return faceDB, nil
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
