package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-recognizer/internal/recognizer"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the reference face index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the index from the dataset folder",
	Long: `Rebuild the reference index from the dataset folder.

Every image in dataset/<person>/ contributes one embedding labeled with the
folder name. Images without a detectable face are skipped and reported.
The previous index content is replaced.`,
	Args: cobra.NoArgs,
	RunE: runIndexBuild,
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number of indexed faces per person",
	Args:  cobra.NoArgs,
	RunE:  runIndexStats,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexStatsCmd)

	indexBuildCmd.Flags().Int("workers", 0, "Parallel embedding requests (0 uses INDEX_WORKERS)")
	indexBuildCmd.Flags().Bool("json", false, "Output the build report as JSON")
	indexStatsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")

	ctx := commandContext(cmd)
	faceDB, err := openFaceDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer faceDB.Close()

	opts := []recognizer.BuildOption{}
	if workers := mustGetInt(cmd, "workers"); workers > 0 {
		opts = append(opts, recognizer.WithWorkers(workers))
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		opts = append(opts, recognizer.WithProgress(func(processed, total int, path string) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Indexing faces"),
					progressbar.OptionShowCount(),
					progressbar.OptionShowIts(),
					progressbar.OptionSetItsString("images"),
					progressbar.OptionShowElapsedTimeOnFinish(),
					progressbar.OptionSetPredictTime(true),
					progressbar.OptionFullWidth(),
				)
			}
			_ = bar.Set(processed)
		}))
	}

	report, err := faceDB.BuildIndex(ctx, opts...)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(report)
	}

	fmt.Printf("Index built (%s backend)\n", report.Backend)
	fmt.Printf("  Identities: %d\n", report.Identities)
	fmt.Printf("  Images:     %d\n", report.Images)
	fmt.Printf("  Faces:      %d\n", report.Faces)
	fmt.Printf("  Duration:   %s\n", report.Duration.Round(time.Millisecond))
	if len(report.Skipped) > 0 {
		fmt.Printf("\nSkipped %d images:\n", len(report.Skipped))
		for _, s := range report.Skipped {
			fmt.Printf("  - %s: %s\n", filepath.ToSlash(s.Path), s.Reason)
		}
	}
	return nil
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	faceDB, err := openFaceDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer faceDB.Close()

	stats, err := faceDB.Stats(ctx)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(stats)
	}

	fmt.Printf("Backend:     %s\n", stats.Backend)
	fmt.Printf("Total faces: %d\n", stats.TotalFaces)
	fmt.Printf("Persons:     %d\n", len(stats.Persons))
	for _, p := range stats.Persons {
		fmt.Printf("  %-30s %d\n", p.Label, p.Count)
	}
	return nil
}
