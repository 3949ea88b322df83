package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/dataset"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Inspect the reference dataset folder",
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities and their image counts",
	Long: `List the identity folders of the dataset and how many images each holds.

Examples:
  face-recognizer dataset list
  face-recognizer dataset list --person "jan novak"`,
	Args: cobra.NoArgs,
	RunE: runDatasetList,
}

var datasetDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Find copies of the same picture in the dataset",
	Long: `Find near-identical reference images using a perceptual difference hash.

Copies inside one identity folder weight that person twice. Copies across
folders usually mean a mislabeled image.`,
	Args: cobra.NoArgs,
	RunE: runDatasetDuplicates,
}

func init() {
	rootCmd.AddCommand(datasetCmd)
	datasetCmd.AddCommand(datasetListCmd)
	datasetCmd.AddCommand(datasetDuplicatesCmd)

	datasetDuplicatesCmd.Flags().Int("distance", dataset.DefaultDuplicateDistance, "Maximum hash distance (0-64) for two images to count as copies")
	datasetDuplicatesCmd.Flags().Bool("json", false, "Output as JSON")

	datasetListCmd.Flags().String("person", "", "Only identities whose name contains this text (case and accent insensitive)")
	datasetListCmd.Flags().Bool("json", false, "Output as JSON")
}

// datasetSummary is one row of the dataset listing.
type datasetSummary struct {
	Name   string `json:"name"`
	Images int    `json:"images"`
}

func runDatasetList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ds, err := dataset.Scan(cfg.Dataset.Path)
	if err != nil {
		return err
	}

	identities := ds.Filter(mustGetString(cmd, "person"))
	rows := make([]datasetSummary, 0, len(identities))
	total := 0
	for _, id := range identities {
		rows = append(rows, datasetSummary{Name: id.Name, Images: len(id.Images)})
		total += len(id.Images)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(rows)
	}

	if len(rows) == 0 {
		fmt.Printf("No identities found in %s\n", cfg.Dataset.Path)
		return nil
	}
	for _, r := range rows {
		fmt.Printf("%-30s %d\n", r.Name, r.Images)
	}
	fmt.Printf("\n%d identities, %d images\n", len(rows), total)
	return nil
}

func runDatasetDuplicates(cmd *cobra.Command, args []string) error {
	distance := mustGetInt(cmd, "distance")
	if distance < 0 || distance > 64 {
		return fmt.Errorf("--distance must be within 0-64, got %d", distance)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ds, err := dataset.Scan(cfg.Dataset.Path)
	if err != nil {
		return err
	}

	groups, undecodable, err := ds.FindDuplicates(distance)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		if groups == nil {
			groups = []dataset.DuplicateGroup{}
		}
		return outputJSON(map[string]any{"groups": groups, "undecodable": undecodable})
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate images found.")
	}
	for i, g := range groups {
		marker := ""
		if g.CrossIdentity {
			marker = " (different identities!)"
		}
		fmt.Printf("Group %d%s:\n", i+1, marker)
		for _, img := range g.Images {
			fmt.Printf("  %s/%s\n", img.Identity, img.Name)
		}
	}
	if len(undecodable) > 0 {
		fmt.Printf("\n%d images could not be decoded:\n", len(undecodable))
		for _, img := range undecodable {
			fmt.Printf("  %s/%s\n", img.Identity, img.Name)
		}
	}
	return nil
}
