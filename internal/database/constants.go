package database

// HNSW index parameters for 512-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so that exact re-scoring still has k results to choose from.
	HNSWSearchMultiplier = 3
)

// Flat index file layout.
const (
	flatMagic   = "FFIX"
	flatVersion = uint32(1)
)

// Backend names accepted by Open.
const (
	BackendFlat     = "flat"
	BackendHNSW     = "hnsw"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendQdrant   = "qdrant"
)
