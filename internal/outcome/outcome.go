// Package outcome is the append-only record of how each session ended,
// grounded on the original's tools/outcome_log.py. It never intervenes —
// it only observes, so later sessions (and get_outcome_stats) can learn
// which combinations of intent, phase, and confidence tend to fail.
package outcome

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeintel/internal/logging"
)

// Outcome is the terminal verdict of a session.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
)

// Analysis is the agent-supplied explanation of why a session ended the
// way it did.
type Analysis struct {
	RootCause           string   `json:"root_cause"`
	FailurePoint        string   `json:"failure_point,omitempty"`
	RelatedSymbols      []string `json:"related_symbols,omitempty"`
	RelatedFiles        []string `json:"related_files,omitempty"`
	UserFeedbackSummary string   `json:"user_feedback_summary,omitempty"`
}

// Record is a single append-only outcome entry.
type Record struct {
	RecordID       string    `json:"record_id"`
	SessionID      string    `json:"session_id"`
	Timestamp      time.Time `json:"timestamp"`
	Outcome        Outcome   `json:"outcome"`
	PhaseAtOutcome string    `json:"phase_at_outcome"`
	Intent         string    `json:"intent"`
	SemanticUsed   bool      `json:"semantic_search_used"`
	ConfidenceWas  string    `json:"confidence_was,omitempty"`
	Analysis       *Analysis `json:"analysis,omitempty"`
	TriggerMessage string    `json:"trigger_message,omitempty"`
}

// Log appends outcome records to <storeDir>/logs/outcomes.jsonl.
type Log struct {
	mu      sync.Mutex
	logPath string
}

// New creates a Log persisting to <repoRoot>/<storeDir>/logs/outcomes.jsonl.
func New(repoRoot, storeDir string) *Log {
	return &Log{logPath: filepath.Join(repoRoot, storeDir, "logs", "outcomes.jsonl")}
}

// Record appends one outcome record and returns its assigned record id.
// The log grows monotonically — records are never rewritten or removed.
func (l *Log) Record(rec Record) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.RecordID = "outcome_" + rec.SessionID + "_" + rec.Timestamp.Format(time.RFC3339Nano)

	if err := os.MkdirAll(filepath.Dir(l.logPath), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(l.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return "", err
	}
	logging.Get(logging.CategoryOutcome).Info("recorded outcome %s for session %s", rec.Outcome, rec.SessionID)
	return rec.RecordID, nil
}

// ForSession returns every record logged for one session, in append order.
func (l *Log) ForSession(sessionID string) ([]Record, error) {
	all, err := l.recent(0)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range all {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

// recent reads every record; limit <= 0 means unbounded. Malformed lines
// are skipped, matching the original's tolerant JSONL reader.
func (l *Log) recent(limit int) ([]Record, error) {
	f, err := os.Open(l.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Recent returns the most recent limit records (default 100 if limit <= 0).
func (l *Log) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	return l.recent(limit)
}

// OutcomeCounts tallies success/failure/partial for one breakdown bucket.
type OutcomeCounts struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Partial int `json:"partial"`
}

func (c *OutcomeCounts) add(o Outcome) {
	switch o {
	case OutcomeSuccess:
		c.Success++
	case OutcomeFailure:
		c.Failure++
	case OutcomePartial:
		c.Partial++
	}
}

// PairCounts tallies success/failure for a two-way correlation (e.g.
// semantic-search-usage x outcome, confidence x outcome). Partial outcomes
// are excluded, matching the original's devrag/confidence correlation
// tables which only ever compare success against failure.
type PairCounts struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// Stats is the get_outcome_stats / get_failure_stats report: outcome
// breakdown cross-referenced against intent, phase, semantic-search usage,
// and confidence level.
type Stats struct {
	Total                 int                       `json:"total"`
	ByOutcome             OutcomeCounts             `json:"by_outcome"`
	ByIntent              map[string]*OutcomeCounts `json:"by_intent"`
	ByPhase               map[string]*OutcomeCounts `json:"by_phase"`
	SemanticCorrelation   map[string]*PairCounts    `json:"semantic_search_correlation"`
	ConfidenceCorrelation map[string]*PairCounts    `json:"confidence_correlation"`
}

// Stats computes the correlation breakdown over the most recent 1000
// records, the supplemented feature behind get_outcome_stats /
// get_failure_stats.
func (l *Log) Stats() (Stats, error) {
	records, err := l.recent(1000)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Total:                 len(records),
		ByIntent:              make(map[string]*OutcomeCounts),
		ByPhase:               make(map[string]*OutcomeCounts),
		SemanticCorrelation:   map[string]*PairCounts{"with_semantic_search": {}, "without_semantic_search": {}},
		ConfidenceCorrelation: map[string]*PairCounts{"high": {}, "low": {}},
	}

	for _, r := range records {
		stats.ByOutcome.add(r.Outcome)

		if stats.ByIntent[r.Intent] == nil {
			stats.ByIntent[r.Intent] = &OutcomeCounts{}
		}
		stats.ByIntent[r.Intent].add(r.Outcome)

		if stats.ByPhase[r.PhaseAtOutcome] == nil {
			stats.ByPhase[r.PhaseAtOutcome] = &OutcomeCounts{}
		}
		stats.ByPhase[r.PhaseAtOutcome].add(r.Outcome)

		if r.Outcome == OutcomeSuccess || r.Outcome == OutcomeFailure {
			key := "without_semantic_search"
			if r.SemanticUsed {
				key = "with_semantic_search"
			}
			addPair(stats.SemanticCorrelation[key], r.Outcome)

			if r.ConfidenceWas == "high" || r.ConfidenceWas == "low" {
				addPair(stats.ConfidenceCorrelation[r.ConfidenceWas], r.Outcome)
			}
		}
	}

	return stats, nil
}

func addPair(p *PairCounts, o Outcome) {
	switch o {
	case OutcomeSuccess:
		p.Success++
	case OutcomeFailure:
		p.Failure++
	}
}
