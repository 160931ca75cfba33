//go:build !sqlite_vec || !cgo

package vectorindex

import (
	_ "modernc.org/sqlite"
)

// driverName is the database/sql driver registered for this build.
// modernc.org/sqlite is pure Go, so builds without the sqlite_vec,cgo tags
// still get a working, portable vector index — just without ANN indexing.
const driverName = "sqlite"

// initANN is a no-op: this build has no vec0 virtual table support, so
// search always falls back to brute-force cosine similarity.
func (idx *Index) initANN(dim int) bool {
	return false
}

func (idx *Index) backfillANN() {}

func (idx *Index) syncANNForest() {}

func (idx *Index) syncANNMap() {}

// searchCollection always scans and scores in Go in this build.
func (idx *Index) searchCollection(queryVec []float32, collection Collection, n int) ([]Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.bruteForceSearchLocked(queryVec, collection, n)
}
