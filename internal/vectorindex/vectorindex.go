// Package vectorindex stores and searches two embedding collections: the
// "forest" (chunked source code, refreshed on each sync) and the "map"
// (confirmed natural-language-to-symbol agreements, refreshed whenever a new
// agreement is recorded). Search starts in the map and only falls through to
// the forest when the map's best hit is below MapShortCircuitThreshold,
// mirroring the original's ChromaDBManager.search short-circuit.
//
// Storage follows the teacher's internal/store package: SQLite via
// database/sql, with an optional sqlite-vec-backed vec0 virtual table for
// ANN search when built with the sqlite_vec,cgo tags (see vec_cgo.go), and a
// brute-force cosine fallback otherwise (see vec_fallback.go), matching
// vector_store.go's VectorRecallSemantic dual path.
package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"codeintel/internal/chunker"
	"codeintel/internal/embedding"
	"codeintel/internal/logging"
)

// Collection selects which side of the index a search targets.
type Collection string

const (
	CollectionAuto   Collection = "auto"
	CollectionMap    Collection = "map"
	CollectionForest Collection = "forest"
)

// Hit is a single scored search result.
type Hit struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float64           `json:"score"` // higher is better, in [0,1]
	Metadata map[string]string `json:"metadata"`
}

// Result is the outcome of a Search call, including which collection
// answered it and whether the forest search was skipped.
type Result struct {
	Source     Collection `json:"source"`
	Hits       []Hit      `json:"hits"`
	SkipForest bool       `json:"skip_forest"`
	Confidence string     `json:"confidence"` // "high", "medium", "low"
}

// Stats summarizes index size for diagnostics.
type Stats struct {
	ForestCount    int64  `json:"forest_count"`
	MapCount       int64  `json:"map_count"`
	EmbeddingModel string `json:"embedding_model"`
	ANNEnabled     bool   `json:"ann_enabled"`
}

// Config configures an Index.
type Config struct {
	DBPath                   string
	MapShortCircuitThreshold float64 // default 0.7, per CodeIntelConfig.MapShortCircuitThreshold
}

// Index is the two-collection vector store.
type Index struct {
	mu     sync.RWMutex
	db     *sql.DB
	engine embedding.EmbeddingEngine
	cfg    Config
	annOK  bool // true once the vec0 virtual table initialized successfully
}

// Open creates or attaches to the on-disk SQLite database backing the index
// and ensures the schema exists.
func Open(cfg Config) (*Index, error) {
	if cfg.MapShortCircuitThreshold <= 0 {
		cfg.MapShortCircuitThreshold = 0.7
	}

	db, err := sql.Open(driverName, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open vector index db: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite: single-writer discipline, matches the teacher's LocalStore

	idx := &Index{db: db, cfg: cfg}
	if err := idx.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Get(logging.CategoryVectorIndex).Info("vector index opened at %s (driver=%s)", cfg.DBPath, driverName)
	return idx, nil
}

func (idx *Index) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS forest_vectors (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB,
			metadata TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forest_path ON forest_vectors(path)`,
		`CREATE TABLE IF NOT EXISTS map_vectors (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding BLOB,
			metadata TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, s := range stmts {
		if _, err := idx.db.Exec(s); err != nil {
			return fmt.Errorf("vector index schema: %w", err)
		}
	}
	return nil
}

// SetEngine configures the embedding engine used to generate vectors for new
// upserts and queries, and attempts to initialize the ANN backend now that
// the embedding dimensionality is known. A nil engine is not supported —
// unlike the teacher's LocalStore, the coordinator has no meaningful
// keyword-only fallback mode for this index, since search quality drives
// phase-gate decisions.
func (idx *Index) SetEngine(engine embedding.EmbeddingEngine) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.engine = engine
	idx.annOK = idx.initANN(engine.Dimensions())
	if idx.annOK {
		idx.backfillANN()
	}
	logging.Get(logging.CategoryVectorIndex).Info("vector index engine set: %s (dim=%d, ann=%v)", engine.Name(), engine.Dimensions(), idx.annOK)
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// UpsertForestChunks embeds and stores every chunk extracted from one file,
// first clearing any chunks previously indexed for that path (mirroring
// ChromaDBManager._delete_chunks_for_file followed by upsert).
func (idx *Index) UpsertForestChunks(ctx context.Context, path string, chunks []chunker.Chunk) (int, error) {
	if err := idx.DeleteForestFile(ctx, path); err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	idx.mu.RLock()
	engine := idx.engine
	idx.mu.RUnlock()
	if engine == nil {
		return 0, fmt.Errorf("vector index: no embedding engine configured")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := engine.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks for %s: %w", path, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	tx, err := idx.db.Begin()
	if err != nil {
		return 0, err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO forest_vectors (id, path, content, embedding, metadata) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	stored := 0
	for i, c := range chunks {
		if len(vectors[i]) == 0 {
			continue
		}
		meta := map[string]string{
			"kind":       string(c.Kind),
			"name":       c.Name,
			"signature":  c.Signature,
			"start_line": fmt.Sprintf("%d", c.StartLine),
			"end_line":   fmt.Sprintf("%d", c.EndLine),
			"language":   c.Language,
		}
		metaJSON, _ := json.Marshal(meta)
		id := chunkID(path, c.StartLine, c.Name)
		if _, err := stmt.Exec(id, path, c.Content, encodeVector(vectors[i]), string(metaJSON)); err != nil {
			tx.Rollback()
			return stored, err
		}
		stored++
	}
	if err := tx.Commit(); err != nil {
		return stored, err
	}
	idx.syncANNForest()
	logging.VectorIndexDebug("indexed %d chunks for %s into forest collection", stored, path)
	return stored, nil
}

// DeleteForestFile removes every chunk previously indexed for path.
func (idx *Index) DeleteForestFile(ctx context.Context, path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, err := idx.db.Exec(`DELETE FROM forest_vectors WHERE path = ?`, path); err != nil {
		return err
	}
	idx.syncANNForest()
	return nil
}

// UpsertMapAgreement embeds and stores a confirmed NL-to-symbol agreement.
func (idx *Index) UpsertMapAgreement(ctx context.Context, docID, content string, metadata map[string]string) error {
	idx.mu.RLock()
	engine := idx.engine
	idx.mu.RUnlock()
	if engine == nil {
		return fmt.Errorf("vector index: no embedding engine configured")
	}

	vec, err := engine.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed agreement %s: %w", docID, err)
	}

	if metadata == nil {
		metadata = map[string]string{"source": "agreement", "doc_id": docID}
	}
	metaJSON, _ := json.Marshal(metadata)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, err = idx.db.Exec(
		`INSERT OR REPLACE INTO map_vectors (id, content, embedding, metadata) VALUES (?, ?, ?, ?)`,
		docID, content, encodeVector(vec), string(metaJSON),
	)
	if err != nil {
		return err
	}
	idx.syncANNMap()
	return nil
}

// Search runs the short-circuit auto search, or a direct single-collection
// search when collection is Map or Forest, mirroring ChromaDBManager.search.
func (idx *Index) Search(ctx context.Context, query, targetFeature string, collection Collection, n int) (Result, error) {
	if n <= 0 {
		n = 10
	}
	searchQuery := query
	if targetFeature != "" {
		searchQuery = query + " " + targetFeature
	}

	idx.mu.RLock()
	engine := idx.engine
	idx.mu.RUnlock()
	if engine == nil {
		return Result{}, fmt.Errorf("vector index: no embedding engine configured")
	}

	queryVec, err := engine.Embed(ctx, searchQuery)
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}

	switch collection {
	case CollectionMap:
		hits, err := idx.searchCollection(queryVec, CollectionMap, n)
		return Result{Source: CollectionMap, Hits: hits}, err
	case CollectionForest:
		hits, err := idx.searchCollection(queryVec, CollectionForest, n)
		return Result{Source: CollectionForest, Hits: hits}, err
	}

	mapHits, err := idx.searchCollection(queryVec, CollectionMap, 5)
	if err != nil {
		return Result{}, err
	}
	if len(mapHits) > 0 && mapHits[0].Score >= idx.cfg.MapShortCircuitThreshold {
		logging.VectorIndexDebug("map short-circuit: top score %.3f >= threshold %.3f, skipping forest", mapHits[0].Score, idx.cfg.MapShortCircuitThreshold)
		return Result{Source: CollectionMap, Hits: mapHits, SkipForest: true, Confidence: "high"}, nil
	}

	forestHits, err := idx.searchCollection(queryVec, CollectionForest, n)
	if err != nil {
		return Result{}, err
	}
	confidence := "low"
	if len(forestHits) > 0 {
		confidence = "medium"
	}
	return Result{Source: CollectionForest, Hits: forestHits, SkipForest: false, Confidence: confidence}, nil
}

// Stats reports collection sizes and whether ANN search is active.
func (idx *Index) Stats() (Stats, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var s Stats
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM forest_vectors`).Scan(&s.ForestCount); err != nil {
		return s, err
	}
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM map_vectors`).Scan(&s.MapCount); err != nil {
		return s, err
	}
	s.ANNEnabled = idx.annOK
	if idx.engine != nil {
		s.EmbeddingModel = idx.engine.Name()
	}
	return s, nil
}

func chunkID(path string, startLine int, name string) string {
	return fmt.Sprintf("%s:%d:%s", path, startLine, name)
}
