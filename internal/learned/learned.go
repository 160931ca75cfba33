// Package learned caches successful natural-language-term-to-symbol pairs,
// grounded on the original's tools/learned_pairs.py. No tool handler looks
// the cache up, so exploration and semantic search run without it. Entries
// older than MaxAge are pruned by Cleanup.
package learned

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeintel/internal/logging"
)

// Pair is one confirmed NL-term-to-symbol mapping.
type Pair struct {
	NLTerm       string    `json:"nl_term"`
	Symbol       string    `json:"symbol"`
	Similarity   float64   `json:"similarity"`
	CodeEvidence string    `json:"code_evidence,omitempty"`
	SessionID    string    `json:"session_id"`
	LearnedAt    time.Time `json:"learned_at"`
}

type persisted struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Pairs     []Pair    `json:"pairs"`
}

// Cache is the on-disk learned-pair store, one per repository.
type Cache struct {
	mu     sync.Mutex
	path   string
	maxAge time.Duration
	pairs  []Pair
	loaded bool
}

// New creates a Cache persisting to <repoRoot>/<storeDir>/learned_pairs.json.
// maxAgeDays <= 0 falls back to the original's 30-day default.
func New(repoRoot, storeDir string, maxAgeDays int) *Cache {
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	return &Cache{
		path:   filepath.Join(repoRoot, storeDir, "learned_pairs.json"),
		maxAge: time.Duration(maxAgeDays) * 24 * time.Hour,
	}
}

func (c *Cache) load() {
	if c.loaded {
		return
	}
	c.loaded = true

	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		logging.Get(logging.CategoryLearned).Warn("learned pairs cache corrupt, starting fresh: %v", err)
		return
	}
	c.pairs = p.Pairs
}

func (c *Cache) save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(persisted{Version: 1, UpdatedAt: time.Now(), Pairs: c.pairs}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}

// AddPair records or updates a confirmed mapping, keyed on (nl_term, symbol).
func (c *Cache) AddPair(nlTerm, symbol string, similarity float64, codeEvidence, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()

	for i := range c.pairs {
		if c.pairs[i].NLTerm == nlTerm && c.pairs[i].Symbol == symbol {
			c.pairs[i].Similarity = similarity
			c.pairs[i].CodeEvidence = codeEvidence
			c.pairs[i].SessionID = sessionID
			c.pairs[i].LearnedAt = time.Now()
			return c.save()
		}
	}

	c.pairs = append(c.pairs, Pair{
		NLTerm:       nlTerm,
		Symbol:       symbol,
		Similarity:   similarity,
		CodeEvidence: codeEvidence,
		SessionID:    sessionID,
		LearnedAt:    time.Now(),
	})
	return c.save()
}

// FindMatches returns cached pairs for nlTerm whose symbol is among symbols,
// matching find_cached_matches. It has no caller among the tool handlers;
// validate_symbol_relevance does not consult it.
func (c *Cache) FindMatches(nlTerm string, symbols []string) []Pair {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()

	allowed := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		allowed[s] = true
	}

	var matches []Pair
	for _, p := range c.pairs {
		if p.NLTerm == nlTerm && allowed[p.Symbol] {
			matches = append(matches, p)
		}
	}
	return matches
}

// Cleanup removes pairs older than maxAge and reports how many were pruned.
func (c *Cache) Cleanup() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()

	cutoff := time.Now().Add(-c.maxAge)
	kept := c.pairs[:0]
	removed := 0
	for _, p := range c.pairs {
		if p.LearnedAt.After(cutoff) {
			kept = append(kept, p)
		} else {
			removed++
		}
	}
	c.pairs = kept
	if removed > 0 {
		if err := c.save(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Stats summarizes cache contents.
type Stats struct {
	TotalPairs    int    `json:"total_pairs"`
	UniqueNLTerms int    `json:"unique_nl_terms"`
	UniqueSymbols int    `json:"unique_symbols"`
	CachePath     string `json:"cache_path"`
}

// GetStats reports cache size and uniqueness.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()

	nlTerms := make(map[string]struct{})
	symbols := make(map[string]struct{})
	for _, p := range c.pairs {
		nlTerms[p.NLTerm] = struct{}{}
		symbols[p.Symbol] = struct{}{}
	}
	return Stats{
		TotalPairs:    len(c.pairs),
		UniqueNLTerms: len(nlTerms),
		UniqueSymbols: len(symbols),
		CachePath:     c.path,
	}
}

// Clear removes every learned pair and deletes the backing file.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs = nil
	c.loaded = false
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
