package dataset

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// writeDataset creates files under root; keys are relative paths.
func writeDataset(t *testing.T, root string, files []string) {
	t.Helper()
	for _, rel := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestScan_SortedAndFiltered(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, []string{
		"zoe/b.png",
		"zoe/a.JPG",
		"zoe/notes.txt",
		"adam/1.jpeg",
		".hidden/x.jpg",
		"adam/.DS_Store",
		"readme.jpg",
	})
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	ds, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	ids := ds.Identities()
	if len(ids) != 3 {
		t.Fatalf("expected 3 identities, got %d", len(ids))
	}
	if ids[0].Name != "adam" || ids[1].Name != "empty" || ids[2].Name != "zoe" {
		t.Errorf("unexpected identity order: %s, %s, %s", ids[0].Name, ids[1].Name, ids[2].Name)
	}

	images := ds.Images()
	if len(images) != 3 {
		t.Fatalf("expected 3 images, got %d", len(images))
	}
	wantNames := []string{"1.jpeg", "a.JPG", "b.png"}
	for i, want := range wantNames {
		if images[i].Name != want {
			t.Errorf("images[%d] = %s, want %s", i, images[i].Name, want)
		}
	}
	if images[1].Identity != "zoe" {
		t.Errorf("expected identity 'zoe', got '%s'", images[1].Identity)
	}
	if images[1].Path != filepath.Join(root, "zoe", "a.JPG") {
		t.Errorf("unexpected path %s", images[1].Path)
	}
}

func TestScan_MissingRoot(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestScan_EmptyRoot(t *testing.T) {
	ds, err := Scan(t.TempDir())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(ds.Images()) != 0 {
		t.Errorf("expected no images, got %d", len(ds.Images()))
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, []string{"alice/1.jpg"})

	ds, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	img, err := ds.Find("alice", "1.jpg")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if img.Path != filepath.Join(root, "alice", "1.jpg") {
		t.Errorf("unexpected path %s", img.Path)
	}

	for _, tc := range [][2]string{
		{"alice", "2.jpg"},
		{"bob", "1.jpg"},
		{"..", "1.jpg"},
		{"alice", "../alice/1.jpg"},
		{"", ""},
	} {
		if _, err := ds.Find(tc[0], tc[1]); !errors.Is(err, ErrNotFound) {
			t.Errorf("Find(%q, %q) expected ErrNotFound, got %v", tc[0], tc[1], err)
		}
	}
}

func TestFilter(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, []string{"Jiří_Novák/1.jpg", "jan-svoboda/1.jpg", "petra/1.jpg"})

	ds, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if got := ds.Filter(""); len(got) != 3 {
		t.Errorf("expected all identities for empty query, got %d", len(got))
	}
	if got := ds.Filter("jiri novak"); len(got) != 1 || got[0].Name != "Jiří_Novák" {
		t.Errorf("expected Jiří_Novák, got %v", got)
	}
	if got := ds.Filter("SVOBODA"); len(got) != 1 {
		t.Errorf("expected one match for SVOBODA, got %d", len(got))
	}
	if got := ds.Filter("nobody"); len(got) != 0 {
		t.Errorf("expected no matches, got %d", len(got))
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Jiří", "jiri"},
		{"jan-novak", "jan novak"},
		{"Jan_Novák", "jan novak"},
		{"  Eva   Malá ", "eva mala"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := NormalizeName(tc.in); got != tc.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsImageFile(t *testing.T) {
	tests := map[string]bool{
		"a.jpg":  true,
		"a.JPEG": true,
		"a.png":  true,
		"a.gif":  false,
		"a":      false,
		"a.txt":  false,
	}
	for name, want := range tests {
		if got := IsImageFile(name); got != want {
			t.Errorf("IsImageFile(%q) = %v, want %v", name, got, want)
		}
	}
}
