package database

// ReferenceEntry is one indexed face: the identity label of the dataset folder it came from
// and its L2-normalized embedding.
type ReferenceEntry struct {
	ID        int64     // 1-based insertion position
	Label     string    // identity folder name
	Embedding []float32 // unit norm
	Source    string    // dataset-relative image path, informational only
}

// Neighbor is a search hit. Score is the inner product with the query, which equals
// cosine similarity for unit vectors.
type Neighbor struct {
	Entry ReferenceEntry
	Score float64
}

// AssignIDs numbers entries 1..N in input order where no ID is set.
func AssignIDs(entries []ReferenceEntry) {
	for i := range entries {
		if entries[i].ID == 0 {
			entries[i].ID = int64(i + 1)
		}
	}
}
