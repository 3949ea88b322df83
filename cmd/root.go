package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/logger"
)

var (
	configFile string
	debugLog   bool
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "face-recognizer",
	Short: "Recognize people in photos against a folder of reference faces",
	Long: `Face Recognizer builds a vector index of face embeddings from a dataset folder
(dataset/<person>/<images>) and answers "who is this" for new images by cosine
similarity. Faces below the similarity threshold are reported as unknown.

Embeddings are computed by an InsightFace embedding server (EMBEDDING_URL).
The index backend is chosen with INDEX_BACKEND: flat, hnsw, sqlite, postgres or qdrant.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./face-recognizer.yaml if present)")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text, json or pretty (overrides LOG_FORMAT)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig resolves configuration and builds the logger for a command.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	format := cfg.Log.Format
	if logFormat != "" {
		format = logFormat
	}
	log := logger.New(
		logger.WithLevel(cfg.Log.Level),
		logger.WithDebug(debugLog),
		logger.WithFormat(format),
	)
	slog.SetDefault(log)
	return cfg, log, nil
}

// commandContext returns the command context, falling back to Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
