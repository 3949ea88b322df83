package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/recognizer"
)

func TestPrintMatches(t *testing.T) {
	tests := []struct {
		name    string
		matches []recognizer.Match
		want    string
	}{
		{
			name: "no match",
			want: "No face found or no match.\n",
		},
		{
			name:    "known",
			matches: []recognizer.Match{{Label: "Jan Novak", Score: 0.81234, Known: true}},
			want:    "Recognized: Jan Novak with similarity 0.8123\n",
		},
		{
			name:    "unknown",
			matches: []recognizer.Match{{Label: recognizer.UnknownLabel, Score: 0.31}},
			want:    "Unknown person detected (similarity: 0.3100)\n",
		},
		{
			name:    "identity named unknown",
			matches: []recognizer.Match{{Label: "unknown", Score: 0.77, Known: true}},
			want:    "Recognized: unknown with similarity 0.7700\n",
		},
		{
			name: "top k",
			matches: []recognizer.Match{
				{Label: "ann", Score: 0.9, Known: true},
				{Label: "ben", Score: 0.55, Known: true},
			},
			want: "Recognized: ann with similarity 0.9000\n  1. ann (0.9000)\n  2. ben (0.5500)\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			printMatches(&buf, tc.matches)
			if buf.String() != tc.want {
				t.Errorf("got %q, want %q", buf.String(), tc.want)
			}
		})
	}
}

func TestSearchCommandFlags(t *testing.T) {
	if f := searchCmd.Flags().Lookup("rebuild"); f == nil || f.DefValue != rebuildAuto {
		t.Errorf("expected --rebuild default %q", rebuildAuto)
	}
	if f := searchCmd.Flags().Lookup("k"); f == nil || f.DefValue != "1" {
		t.Error("expected --k default 1")
	}
}

func TestApplyThresholdFlag(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    float64
		wantErr bool
	}{
		{"not given keeps config", nil, 0.45, false},
		{"zero is a valid threshold", []string{"--threshold", "0"}, 0, false},
		{"negative", []string{"--threshold=-0.2"}, -0.2, false},
		{"out of range", []string{"--threshold", "1.2"}, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "search"}
			cmd.Flags().Float64("threshold", 0, "")
			if err := cmd.ParseFlags(tc.args); err != nil {
				t.Fatalf("ParseFlags failed: %v", err)
			}

			cfg := &config.Config{
				Index:     config.IndexConfig{Threshold: 0.45},
				Embedding: config.EmbeddingConfig{Dim: 512},
				Dataset:   config.DatasetConfig{Path: "dataset"},
			}
			err := applyThresholdFlag(cmd, cfg)
			if tc.wantErr {
				if err == nil {
					t.Error("expected validation error")
				}
				return
			}
			if err != nil {
				t.Fatalf("applyThresholdFlag failed: %v", err)
			}
			if cfg.Index.Threshold != tc.want {
				t.Errorf("threshold = %v, want %v", cfg.Index.Threshold, tc.want)
			}
		})
	}
}
