package vectorindex

import (
	"encoding/json"
	"fmt"

	"codeintel/internal/embedding"
)

func tableNamesFor(collection Collection) (table, vecTable, idCol string) {
	if collection == CollectionMap {
		return "map_vectors", "vec_map", "doc_id"
	}
	return "forest_vectors", "vec_forest", "chunk_id"
}

func decodeMetadata(metaJSON string) map[string]string {
	if metaJSON == "" {
		return nil
	}
	var m map[string]string
	_ = json.Unmarshal([]byte(metaJSON), &m)
	return m
}

// bruteForceSearchLocked scans a collection table computing cosine
// similarity in Go, matching vector_store.go's vectorRecallBruteForce. The
// caller must already hold idx.mu (read or write).
func (idx *Index) bruteForceSearchLocked(queryVec []float32, collection Collection, n int) ([]Hit, error) {
	table, _, _ := tableNamesFor(collection)

	rows, err := idx.db.Query(fmt.Sprintf(`SELECT id, content, embedding, metadata FROM %s WHERE embedding IS NOT NULL`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		hit   Hit
		score float64
	}
	var candidates []scored

	for rows.Next() {
		var id, content, metaJSON string
		var blob []byte
		if err := rows.Scan(&id, &content, &blob, &metaJSON); err != nil {
			continue
		}
		sim, err := embedding.CosineSimilarity(queryVec, decodeVector(blob))
		if err != nil {
			continue
		}
		candidates = append(candidates, scored{
			hit:   Hit{ID: id, Content: content, Metadata: decodeMetadata(metaJSON)},
			score: sim,
		})
	}

	for i := range candidates {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].score > candidates[i].score {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}
	if len(candidates) > n {
		candidates = candidates[:n]
	}

	hits := make([]Hit, len(candidates))
	for i, c := range candidates {
		hits[i] = c.hit
		hits[i].Score = c.score
	}
	return hits, nil
}
