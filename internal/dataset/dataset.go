// Package dataset reads the folder-per-identity reference image layout:
// dataset/<identity_name>/<image files>.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNotFound is returned by Find for unknown identities or files.
var ErrNotFound = errors.New("dataset image not found")

// imageExtensions lists the accepted reference image extensions (lowercase).
var imageExtensions = []string{".jpg", ".jpeg", ".png"}

// IsImageFile reports whether name has a supported image extension.
func IsImageFile(name string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(name)))
}

// Image is a single reference image.
type Image struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Path     string `json:"-"`
}

// Identity groups the images of one person folder.
type Identity struct {
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

// Dataset is a scanned dataset root.
type Dataset struct {
	Root       string
	identities []Identity
}

// Scan walks root one level deep. Identity folders and their files are sorted by name
// so that index builds are reproducible. Hidden entries are ignored.
func Scan(root string) (*Dataset, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", root, err)
	}

	ds := &Dataset{Root: root}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		identityPath := filepath.Join(root, entry.Name())
		files, err := os.ReadDir(identityPath)
		if err != nil {
			return nil, fmt.Errorf("reading identity folder %s: %w", identityPath, err)
		}

		identity := Identity{Name: entry.Name()}
		for _, f := range files {
			if f.IsDir() || strings.HasPrefix(f.Name(), ".") || !IsImageFile(f.Name()) {
				continue
			}
			identity.Images = append(identity.Images, Image{
				Identity: entry.Name(),
				Name:     f.Name(),
				Path:     filepath.Join(identityPath, f.Name()),
			})
		}
		ds.identities = append(ds.identities, identity)
	}

	return ds, nil
}

// Identities returns all identity folders, including those without images.
func (d *Dataset) Identities() []Identity {
	return d.identities
}

// Images returns all images in build order.
func (d *Dataset) Images() []Image {
	var out []Image
	for _, identity := range d.identities {
		out = append(out, identity.Images...)
	}
	return out
}

// Filter returns the identities whose normalized name contains the normalized query.
func (d *Dataset) Filter(query string) []Identity {
	q := NormalizeName(query)
	if q == "" {
		return d.identities
	}
	var out []Identity
	for _, identity := range d.identities {
		if strings.Contains(NormalizeName(identity.Name), q) {
			out = append(out, identity)
		}
	}
	return out
}

// Find resolves a gallery image by identity and file name. Names containing path
// separators or parent references are rejected.
func (d *Dataset) Find(identity, name string) (Image, error) {
	if !safeComponent(identity) || !safeComponent(name) {
		return Image{}, ErrNotFound
	}
	for _, id := range d.identities {
		if id.Name != identity {
			continue
		}
		for _, img := range id.Images {
			if img.Name == name {
				return img, nil
			}
		}
	}
	return Image{}, ErrNotFound
}

func safeComponent(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
