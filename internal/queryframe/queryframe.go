// Package queryframe structures a natural-language task description into the
// four-slot frame (target feature, trigger condition, observed issue,
// desired action) plus a dynamically-updated symbol map, grounded on the
// original's tools/query_frame.py. Every slot and mapped symbol tracks
// whether it was confirmed during EXPLORATION (Fact) or only guessed during
// SEMANTIC (Hypothesis) — hypothesis-sourced symbols must clear
// VERIFICATION before the session can act on them.
package queryframe

import (
	"fmt"
	"strings"
	"time"
)

// SlotSource records which phase resolved a slot or symbol.
type SlotSource string

const (
	SourceFact       SlotSource = "FACT"
	SourceHypothesis SlotSource = "HYPOTHESIS"
	SourceUnresolved SlotSource = "UNRESOLVED"
)

// Evidence records which tool call filled a slot or symbol, for audit and
// for the agreements generator to cite.
type Evidence struct {
	Tool          string            `json:"tool"`
	Params        map[string]string `json:"params"`
	ResultSummary string            `json:"result_summary"`
	Timestamp     time.Time         `json:"timestamp"`
}

// MappedSymbol is a code symbol identified as implementing some part of the
// task, with a confidence score and the evidence that produced it.
type MappedSymbol struct {
	Name       string     `json:"name"`
	Source     SlotSource `json:"source"`
	Confidence float64    `json:"confidence"`
	Evidence   *Evidence  `json:"evidence,omitempty"`
}

// Frame is the structured representation of one natural-language task
// description, built up incrementally as the session progresses through its
// exploration and verification phases.
type Frame struct {
	RawQuery string `json:"raw_query"`

	TargetFeature    string `json:"target_feature,omitempty"`
	TriggerCondition string `json:"trigger_condition,omitempty"`
	ObservedIssue    string `json:"observed_issue,omitempty"`
	DesiredAction    string `json:"desired_action,omitempty"`

	MappedSymbols []MappedSymbol `json:"mapped_symbols,omitempty"`

	SlotSource   map[string]SlotSource `json:"slot_source,omitempty"`
	SlotEvidence map[string]Evidence   `json:"slot_evidence,omitempty"`
	SlotQuotes   map[string]string     `json:"slot_quotes,omitempty"`
}

// New creates an empty Frame anchored on the raw natural-language query.
func New(rawQuery string) *Frame {
	return &Frame{
		RawQuery:     rawQuery,
		SlotSource:   make(map[string]SlotSource),
		SlotEvidence: make(map[string]Evidence),
		SlotQuotes:   make(map[string]string),
	}
}

var slotNames = []string{"target_feature", "trigger_condition", "observed_issue", "desired_action"}

// MissingSlots lists the four top-level slots that remain unfilled.
func (f *Frame) MissingSlots() []string {
	var missing []string
	if f.TargetFeature == "" {
		missing = append(missing, "target_feature")
	}
	if f.TriggerCondition == "" {
		missing = append(missing, "trigger_condition")
	}
	if f.ObservedIssue == "" {
		missing = append(missing, "observed_issue")
	}
	if f.DesiredAction == "" {
		missing = append(missing, "desired_action")
	}
	return missing
}

// HypothesisSlots lists slots still sourced from SEMANTIC guesswork rather
// than EXPLORATION fact.
func (f *Frame) HypothesisSlots() []string {
	var out []string
	for _, name := range slotNames {
		if f.SlotSource[name] == SourceHypothesis {
			out = append(out, name)
		}
	}
	return out
}

// FactSymbols returns mapped symbols confirmed as fact.
func (f *Frame) FactSymbols() []MappedSymbol {
	return f.symbolsBySource(SourceFact)
}

// HypothesisSymbols returns mapped symbols still awaiting verification.
func (f *Frame) HypothesisSymbols() []MappedSymbol {
	return f.symbolsBySource(SourceHypothesis)
}

func (f *Frame) symbolsBySource(source SlotSource) []MappedSymbol {
	var out []MappedSymbol
	for _, s := range f.MappedSymbols {
		if s.Source == source {
			out = append(out, s)
		}
	}
	return out
}

// UpdateSlot sets one of the four top-level slots along with its source and
// supporting evidence. Evidence is required, matching the original's
// update_slot, which never allows a silent, unattributed slot fill.
func (f *Frame) UpdateSlot(slotName, value string, source SlotSource, evidence Evidence) {
	switch slotName {
	case "target_feature":
		f.TargetFeature = value
	case "trigger_condition":
		f.TriggerCondition = value
	case "observed_issue":
		f.ObservedIssue = value
	case "desired_action":
		f.DesiredAction = value
	}
	if f.SlotSource == nil {
		f.SlotSource = make(map[string]SlotSource)
	}
	if f.SlotEvidence == nil {
		f.SlotEvidence = make(map[string]Evidence)
	}
	f.SlotSource[slotName] = source
	f.SlotEvidence[slotName] = evidence
}

// AddMappedSymbol records or upgrades a symbol mapping. A symbol already
// present is only overwritten when the new evidence is FACT-sourced or
// strictly more confident, mirroring add_mapped_symbol's
// never-downgrade-confidence rule.
func (f *Frame) AddMappedSymbol(name string, source SlotSource, confidence float64, evidence *Evidence) {
	for i := range f.MappedSymbols {
		if f.MappedSymbols[i].Name != name {
			continue
		}
		existing := &f.MappedSymbols[i]
		if source == SourceFact || confidence > existing.Confidence {
			existing.Source = source
			existing.Confidence = confidence
			if evidence != nil {
				existing.Evidence = evidence
			}
		}
		return
	}
	f.MappedSymbols = append(f.MappedSymbols, MappedSymbol{
		Name:       name,
		Source:     source,
		Confidence: confidence,
		Evidence:   evidence,
	})
}

// IsComplete reports whether every top-level slot is filled, no slot is
// HYPOTHESIS-sourced, and no mapped symbol remains at hypothesis confidence.
func (f *Frame) IsComplete() bool {
	return len(f.MissingSlots()) == 0 && len(f.HypothesisSlots()) == 0 && len(f.HypothesisSymbols()) == 0
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func tokens(s string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.Trim(word, ".,;:!?\"'()[]{}")
		if word != "" {
			set[word] = true
		}
	}
	return set
}

// ValidateSlot checks that a submitted (value, quote) pair for slotName is
// grounded in the raw query: the quote must whitespace-normalize to a
// literal substring of the raw query, and the value must either be a
// substring of the quote or share at least one keyword token with it.
// Ungrounded slots are how an agent's hallucinated claims get caught before
// they ever reach a mapped symbol.
func (f *Frame) ValidateSlot(slotName, value, quote string) error {
	normQuery := normalizeWhitespace(f.RawQuery)
	normQuote := normalizeWhitespace(quote)
	if normQuote == "" || !strings.Contains(normQuery, normQuote) {
		return fmt.Errorf("quote %q is not a substring of the raw query", quote)
	}

	normValue := strings.ToLower(normalizeWhitespace(value))
	lowerQuote := strings.ToLower(normQuote)
	if normValue != "" && strings.Contains(lowerQuote, normValue) {
		return nil
	}

	quoteTokens := tokens(quote)
	for tok := range tokens(value) {
		if quoteTokens[tok] {
			return nil
		}
	}
	return fmt.Errorf("value %q shares no content with quote %q", value, quote)
}

// RiskLevel is the server-computed confidence-of-understanding signal
// surfaced to the agent and recorded for get_outcome_stats correlation.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

// AssessRisk derives a risk level and the reasons behind it from the
// frame's current slot state and the session's declared intent. Every
// condition is checked and each one that holds adds its reason; the returned
// level is the highest one raised (HIGH dominates MEDIUM). intent is the session's session.Intent value
// passed through as a plain string to avoid an import cycle (queryframe is
// imported by session, not the other way around).
func (f *Frame) AssessRisk(intent string) (RiskLevel, []string) {
	var reasons []string
	level := RiskLow

	raise := func(l RiskLevel, reason string) {
		reasons = append(reasons, reason)
		if l == RiskHigh || (l == RiskMedium && level != RiskHigh) {
			level = l
		}
	}

	if len(f.MissingSlots()) == 4 {
		raise(RiskHigh, "no query frame slots have been filled")
	}

	if intent == "MODIFY" && f.TargetFeature == "" {
		raise(RiskHigh, "a MODIFY session has no target_feature identified")
	}

	if f.DesiredAction != "" && f.ObservedIssue == "" {
		raise(RiskHigh, "a desired_action is present with no observed_issue to justify it")
	}

	if f.ObservedIssue != "" && len(strings.TrimSpace(f.ObservedIssue)) < 10 {
		raise(RiskMedium, "observed_issue is too short to be a meaningful description")
	}

	if len(f.HypothesisSlots()) > 0 {
		raise(RiskMedium, "one or more slots remain at HYPOTHESIS confidence")
	}

	return level, reasons
}

// GenerateInvestigationGuidance maps each missing top-level slot to a
// concrete next tool call, the pedagogical nudge that keeps an agent from
// stalling in EXPLORATION with no idea what to search for next.
func GenerateInvestigationGuidance(missingSlots []string) map[string]string {
	guidance := map[string]string{
		"target_feature":    "use search_text or find_definitions to locate the component the query refers to",
		"trigger_condition": "use get_function_at_line or analyze_structure to see what triggers the behavior in question",
		"observed_issue":    "use search_text against error strings or log messages to confirm the observed symptom",
		"desired_action":    "re-read the raw query for an explicit verb (fix, add, remove, refactor) before guessing one",
	}
	out := make(map[string]string, len(missingSlots))
	for _, slot := range missingSlots {
		if hint, ok := guidance[slot]; ok {
			out[slot] = hint
		}
	}
	return out
}
