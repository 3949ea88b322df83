package dataset

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"os"
	"sort"

	"golang.org/x/image/draw"
)

// DefaultDuplicateDistance is the Hamming distance below which two difference hashes
// are treated as the same picture.
const DefaultDuplicateDistance = 6

// DuplicateGroup is a set of dataset images that show the same picture.
// CrossIdentity is set when the copies sit in different identity folders.
type DuplicateGroup struct {
	Images        []Image `json:"images"`
	CrossIdentity bool    `json:"cross_identity"`
}

// Hash returns the 64-bit difference hash of an encoded image.
func Hash(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decoding image: %w", err)
	}

	// 9x8 gray thumbnail: 8 horizontal gradients per row.
	small := image.NewGray(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	for y := range 8 {
		for x := range 8 {
			hash <<= 1
			if small.GrayAt(x, y).Y > small.GrayAt(x+1, y).Y {
				hash |= 1
			}
		}
	}
	return hash, nil
}

// Distance is the number of differing bits between two hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// FindDuplicates groups images whose hashes are within maxDistance of each other.
// Files that cannot be decoded are returned separately and take no part in grouping.
func (d *Dataset) FindDuplicates(maxDistance int) ([]DuplicateGroup, []Image, error) {
	images := d.Images()
	hashes := make([]uint64, 0, len(images))
	hashed := make([]Image, 0, len(images))
	var undecodable []Image

	for _, img := range images {
		data, err := os.ReadFile(img.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", img.Path, err)
		}
		h, err := Hash(data)
		if err != nil {
			undecodable = append(undecodable, img)
			continue
		}
		hashes = append(hashes, h)
		hashed = append(hashed, img)
	}

	// Union-find over all close pairs.
	parent := make([]int, len(hashed))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range hashed {
		for j := i + 1; j < len(hashed); j++ {
			if Distance(hashes[i], hashes[j]) <= maxDistance {
				if ri, rj := find(i), find(j); ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	members := make(map[int][]int)
	for i := range hashed {
		root := find(i)
		members[root] = append(members[root], i)
	}

	var groups []DuplicateGroup
	for _, idx := range members {
		if len(idx) < 2 {
			continue
		}
		g := DuplicateGroup{}
		for _, i := range idx {
			g.Images = append(g.Images, hashed[i])
			if hashed[i].Identity != hashed[idx[0]].Identity {
				g.CrossIdentity = true
			}
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Images[0].Path < groups[j].Images[0].Path })

	return groups, undecodable, nil
}
