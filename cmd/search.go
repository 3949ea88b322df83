package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/constants"
	"github.com/kozaktomas/face-recognizer/internal/recognizer"
)

// Rebuild policies for the search command.
const (
	rebuildAuto   = "auto"
	rebuildAlways = "always"
	rebuildNever  = "never"
)

const defaultQueryImage = "./test.jpg"

var searchCmd = &cobra.Command{
	Use:   "search [image]",
	Short: "Identify the person in an image",
	Long: `Identify the person in an image against the reference index.

The index is rebuilt from the dataset first according to --rebuild:
  auto    rebuild only when the index is empty (default)
  always  rebuild before every search
  never   search the existing index as is

Examples:
  face-recognizer search
  face-recognizer search photos/party.jpg --k 3
  face-recognizer search query.png --rebuild always --threshold 0.6`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Int("k", constants.DefaultTopK, "Number of matches to return")
	searchCmd.Flags().String("rebuild", rebuildAuto, "Rebuild policy: auto, always or never")
	searchCmd.Flags().Float64("threshold", 0, "Similarity threshold within [-1, 1], overrides SIMILARITY_THRESHOLD")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	imagePath := defaultQueryImage
	if len(args) == 1 {
		imagePath = args[0]
	}

	k := mustGetInt(cmd, "k")
	if k < 1 {
		return fmt.Errorf("--k must be at least 1, got %d", k)
	}
	policy := mustGetString(cmd, "rebuild")
	if policy != rebuildAuto && policy != rebuildAlways && policy != rebuildNever {
		return fmt.Errorf("invalid --rebuild %q (auto, always or never)", policy)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyThresholdFlag(cmd, cfg); err != nil {
		return err
	}

	ctx := commandContext(cmd)
	faceDB, err := openFaceDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer faceDB.Close()

	if err := ensureIndex(ctx, faceDB, policy, logger); err != nil {
		return err
	}

	matches, err := faceDB.SearchFile(ctx, imagePath, k)
	if err != nil {
		return fmt.Errorf("searching %s: %w", imagePath, err)
	}

	if mustGetBool(cmd, "json") {
		if matches == nil {
			matches = []recognizer.Match{}
		}
		return outputJSON(matches)
	}
	printMatches(os.Stdout, matches)
	return nil
}

// applyThresholdFlag overrides the configured threshold when --threshold was given.
func applyThresholdFlag(cmd *cobra.Command, cfg *config.Config) error {
	if !cmd.Flags().Changed("threshold") {
		return nil
	}
	cfg.Index.Threshold = mustGetFloat64(cmd, "threshold")
	return cfg.Validate()
}

// ensureIndex rebuilds the index according to the rebuild policy.
func ensureIndex(ctx context.Context, faceDB *recognizer.FaceDB, policy string, logger *slog.Logger) error {
	switch policy {
	case rebuildNever:
		return nil
	case rebuildAuto:
		count, err := faceDB.Count(ctx)
		if err != nil {
			return fmt.Errorf("checking index: %w", err)
		}
		if count > 0 {
			logger.Debug("index already populated", "faces", count)
			return nil
		}
		logger.Info("index is empty, building from dataset", "dataset", faceDB.DatasetPath())
	}

	if _, err := faceDB.BuildIndex(ctx); err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	return nil
}

// printMatches writes the human-readable search result.
func printMatches(w io.Writer, matches []recognizer.Match) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No face found or no match.")
		return
	}

	best := matches[0]
	if best.Known {
		fmt.Fprintf(w, "Recognized: %s with similarity %.4f\n", best.Label, best.Score)
	} else {
		fmt.Fprintf(w, "Unknown person detected (similarity: %.4f)\n", best.Score)
	}

	if len(matches) > 1 {
		for i, m := range matches {
			fmt.Fprintf(w, "  %d. %s (%.4f)\n", i+1, m.Label, m.Score)
		}
	}
}
