//go:build sqlite_vec && cgo

package vectorindex

import (
	"fmt"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"codeintel/internal/logging"
)

// driverName is the database/sql driver registered for this build. cgo
// builds use mattn/go-sqlite3 so sqlite-vec's C extension can be loaded,
// matching the teacher's internal/store/init_vec.go.
const driverName = "sqlite3"

func init() {
	vec.Auto()
}

// initANN creates the vec0 virtual tables backing ANN search for both
// collections, once the embedding dimensionality is known.
func (idx *Index) initANN(dim int) bool {
	if dim <= 0 {
		return false
	}
	stmts := []string{
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_forest USING vec0(embedding float[%d], chunk_id TEXT)`, dim),
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_map USING vec0(embedding float[%d], doc_id TEXT)`, dim),
	}
	for _, s := range stmts {
		if _, err := idx.db.Exec(s); err != nil {
			logging.Get(logging.CategoryVectorIndex).Warn("failed to create sqlite-vec table: %v", err)
			return false
		}
	}
	return true
}

// backfillANN copies every existing embedding in the plain tables into the
// vec0 tables, mirroring the teacher's backfillVecIndex.
func (idx *Index) backfillANN() {
	idx.copyIntoANN("forest_vectors", "vec_forest", "chunk_id")
	idx.copyIntoANN("map_vectors", "vec_map", "doc_id")
}

func (idx *Index) copyIntoANN(sourceTable, vecTable, idCol string) {
	rows, err := idx.db.Query(fmt.Sprintf(`SELECT id, embedding FROM %s WHERE embedding IS NOT NULL`, sourceTable))
	if err != nil {
		return
	}
	defer rows.Close()

	insertSQL := fmt.Sprintf(`INSERT OR REPLACE INTO %s (embedding, %s) VALUES (?, ?)`, vecTable, idCol)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			continue
		}
		_, _ = idx.db.Exec(insertSQL, blob, id)
	}
}

// syncANNForest keeps vec_forest consistent after a forest upsert/delete.
func (idx *Index) syncANNForest() {
	if !idx.annOK {
		return
	}
	_, _ = idx.db.Exec(`DELETE FROM vec_forest`)
	idx.copyIntoANN("forest_vectors", "vec_forest", "chunk_id")
}

// syncANNMap keeps vec_map consistent after a map upsert.
func (idx *Index) syncANNMap() {
	if !idx.annOK {
		return
	}
	_, _ = idx.db.Exec(`DELETE FROM vec_map`)
	idx.copyIntoANN("map_vectors", "vec_map", "doc_id")
}

// searchCollection performs ANN search via sqlite-vec's cosine distance
// ordering when available, mirroring vectorRecallVec.
func (idx *Index) searchCollection(queryVec []float32, collection Collection, n int) ([]Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.annOK {
		return idx.bruteForceSearchLocked(queryVec, collection, n)
	}

	table, vecTable, idCol := tableNamesFor(collection)
	query := fmt.Sprintf(`
		SELECT t.id, t.content, t.metadata, vec_distance_cosine(v.embedding, ?) AS dist
		FROM %s v
		JOIN %s t ON t.id = v.%s
		ORDER BY dist ASC
		LIMIT ?`, vecTable, table, idCol)

	rows, err := idx.db.Query(query, encodeVector(queryVec), n)
	if err != nil {
		// Fall back to brute force if the vec0 query shape is rejected.
		return idx.bruteForceSearchLocked(queryVec, collection, n)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var id, content, metaJSON string
		var dist float64
		if err := rows.Scan(&id, &content, &metaJSON, &dist); err != nil {
			continue
		}
		hits = append(hits, Hit{ID: id, Content: content, Score: 1 - dist, Metadata: decodeMetadata(metaJSON)})
	}
	return hits, nil
}
