package config

// CodeIntelConfig configures the session coordinator: gate enforcement,
// caching horizons, and the impact analyzer's document/markup heuristics.
type CodeIntelConfig struct {
	// GateLevel is "full" (every phase transition enforced) or "auto"
	// (check_phase_necessity returns the agent's structured yes/no answer,
	// which needs a reason of at least 10 characters).
	GateLevel string `yaml:"gate_level" json:"gate_level"`

	// QualityReviewMaxRevert caps how many times submit_quality_review may
	// bounce a session back to READY before forcing completion.
	QualityReviewMaxRevert int `yaml:"quality_review_max_revert" json:"quality_review_max_revert"`

	// InterventionThreshold is the number of consecutive verification
	// failures that triggers an intervention prompt.
	InterventionThreshold int `yaml:"intervention_threshold" json:"intervention_threshold"`

	// LearnedPairMaxAgeDays prunes learned (nl_term, symbol) pairs older
	// than this from the cache.
	LearnedPairMaxAgeDays int `yaml:"learned_pair_max_age_days" json:"learned_pair_max_age_days"`

	// MapShortCircuitThreshold is the minimum cosine similarity against the
	// map collection that skips a forest search.
	MapShortCircuitThreshold float64 `yaml:"map_short_circuit_threshold" json:"map_short_circuit_threshold"`

	// EmbeddingFactThreshold and EmbeddingRejectThreshold are the
	// three-band verdict boundaries for the Embedding Validator.
	EmbeddingFactThreshold   float64 `yaml:"embedding_fact_threshold" json:"embedding_fact_threshold"`
	EmbeddingRejectThreshold float64 `yaml:"embedding_reject_threshold" json:"embedding_reject_threshold"`

	// RelaxedMarkupExtensions are style-only extensions whose impact
	// analysis short-circuits to "no verification required".
	RelaxedMarkupExtensions []string `yaml:"relaxed_markup_extensions" json:"relaxed_markup_extensions"`

	// LogicMarkupExtensions look like markup but carry logic and are never
	// relaxed even when every touched file matches RelaxedMarkupExtensions.
	LogicMarkupExtensions []string `yaml:"logic_markup_extensions" json:"logic_markup_extensions"`

	// DocumentExcludePatterns scopes the impact analyzer's document-mention
	// keyword search. DocumentPatterns is not read by the analyzer, which
	// picks document files by a fixed extension set (.md, .markdown, .rst,
	// .txt).
	DocumentPatterns        []string `yaml:"document_patterns" json:"document_patterns"`
	DocumentExcludePatterns []string `yaml:"document_exclude_patterns" json:"document_exclude_patterns"`

	// MaxMentionsPerFile/MaxTotalFiles/MaxKeywords bound the document
	// search so a CHANGELOG can't dominate the result set.
	MaxMentionsPerFile int `yaml:"max_mentions_per_file" json:"max_mentions_per_file"`
	MaxTotalFiles      int `yaml:"max_total_files" json:"max_total_files"`
	MaxKeywords        int `yaml:"max_keywords" json:"max_keywords"`

	// BranchStaleAfter is a staleness horizon read through
	// Config.GetBranchStaleAfter. list_stale_branches does not consult it:
	// every llm_task_* branch is reported regardless of age.
	BranchStaleAfter string `yaml:"branch_stale_after" json:"branch_stale_after"`

	// StorePath is the repository-relative directory holding all
	// coordinator state (".code-intel" by default).
	StorePath string `yaml:"store_path" json:"store_path"`
}

// DefaultCodeIntelConfig returns the coordinator's default settings,
// grounded on the constants in the original Python implementation
// (tools/impact_analyzer.py, tools/learned_pairs.py, tools/session.py).
func DefaultCodeIntelConfig() CodeIntelConfig {
	return CodeIntelConfig{
		GateLevel:                "full",
		QualityReviewMaxRevert:   3,
		InterventionThreshold:    3,
		LearnedPairMaxAgeDays:    30,
		MapShortCircuitThreshold: 0.7,
		EmbeddingFactThreshold:   0.6,
		EmbeddingRejectThreshold: 0.3,
		RelaxedMarkupExtensions:  []string{".html", ".htm", ".css", ".scss", ".md", ".markdown"},
		LogicMarkupExtensions:    []string{".blade.php", ".vue", ".jsx", ".tsx"},
		DocumentPatterns:         []string{"**/*.md", "**/README*", "**/docs/**/*"},
		DocumentExcludePatterns: []string{
			"node_modules/**", "vendor/**", ".git/**", ".venv/**", "__pycache__/**",
		},
		MaxMentionsPerFile: 3,
		MaxTotalFiles:      20,
		MaxKeywords:        10,
		BranchStaleAfter:   "168h",
		StorePath:          ".code-intel",
	}
}
