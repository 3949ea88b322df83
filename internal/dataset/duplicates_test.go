package dataset

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// gradient draws a horizontal gradient, rising left to right unless falling is set.
func gradient(falling bool) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 90, 80))
	for x := range 90 {
		v := uint8(x * 2)
		if falling {
			v = uint8(178 - x*2)
		}
		for y := range 80 {
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestHashAndDistance(t *testing.T) {
	rising, err := Hash(encodePNG(t, gradient(false)))
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	falling, err := Hash(encodePNG(t, gradient(true)))
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	if rising != 0 {
		t.Errorf("expected all-zero hash for a rising gradient, got %016x", rising)
	}
	if d := Distance(rising, falling); d != 64 {
		t.Errorf("expected distance 64 between opposite gradients, got %d", d)
	}
	if _, err := Hash([]byte("not an image")); err == nil {
		t.Error("expected error for undecodable data")
	}
}

func TestFindDuplicates(t *testing.T) {
	root := t.TempDir()
	files := map[string][]byte{
		"ann/1.png":   encodePNG(t, gradient(false)),
		"ann/2.png":   encodePNG(t, gradient(true)),
		"ben/1.jpg":   encodeJPEG(t, gradient(false)),
		"carol/1.jpg": []byte("broken"),
	}
	for rel, data := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	ds, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	groups, undecodable, err := ds.FindDuplicates(DefaultDuplicateDistance)
	if err != nil {
		t.Fatalf("FindDuplicates failed: %v", err)
	}

	if len(groups) != 1 {
		t.Fatalf("expected 1 duplicate group, got %d", len(groups))
	}
	g := groups[0]
	if len(g.Images) != 2 || g.Images[0].Identity != "ann" || g.Images[1].Identity != "ben" {
		t.Errorf("unexpected group %+v", g.Images)
	}
	if !g.CrossIdentity {
		t.Error("expected group to be flagged as cross-identity")
	}

	if len(undecodable) != 1 || undecodable[0].Identity != "carol" {
		t.Errorf("expected carol/1.jpg as undecodable, got %+v", undecodable)
	}
}
