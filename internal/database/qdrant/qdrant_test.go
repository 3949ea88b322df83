package qdrant

import (
	"context"
	"testing"

	"github.com/qdrant/go-client/qdrant"

	"github.com/kozaktomas/face-recognizer/internal/database"
	"github.com/kozaktomas/face-recognizer/internal/logger"
)

func TestOpen_Validation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no host", Config{Collection: "faces", Dimensions: 4}},
		{"no collection", Config{Host: "localhost", Dimensions: 4}},
		{"no dimensions", Config{Host: "localhost", Collection: "faces"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Open(ctx, tc.cfg, logger.Nop()); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestToPoints(t *testing.T) {
	points := toPoints([]database.ReferenceEntry{
		{ID: 7, Label: "alice", Source: "alice/1.jpg", Embedding: []float32{1, 0}},
	})
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	p := points[0]
	if p.GetId().GetNum() != 7 {
		t.Errorf("expected id 7, got %d", p.GetId().GetNum())
	}
	if got := p.GetPayload()[payloadLabel].GetStringValue(); got != "alice" {
		t.Errorf("expected label payload 'alice', got '%s'", got)
	}
	if got := p.GetPayload()[payloadSource].GetStringValue(); got != "alice/1.jpg" {
		t.Errorf("expected source payload, got '%s'", got)
	}
}

func TestNeighborFromPoint(t *testing.T) {
	p := &qdrant.ScoredPoint{
		Id:    qdrant.NewIDNum(3),
		Score: 0.75,
		Payload: qdrant.NewValueMap(map[string]any{
			payloadLabel:  "bob",
			payloadSource: "bob/2.png",
		}),
	}

	n := neighborFromPoint(p)
	if n.Entry.ID != 3 || n.Entry.Label != "bob" || n.Entry.Source != "bob/2.png" {
		t.Errorf("unexpected entry %+v", n.Entry)
	}
	if n.Score != 0.75 {
		t.Errorf("expected score 0.75, got %v", n.Score)
	}
}
