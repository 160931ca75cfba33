// Package session implements the phase-gated session state machine that
// mediates every tool call between an agent and a repository, grounded on
// the original's tools/session.py and tools/router.py. A session walks a
// fixed DAG of investigative phases before it is allowed to touch the
// working tree, and the server — never the agent — decides when a phase
// is satisfied.
package session

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codeintel/internal/logging"
	"codeintel/internal/queryframe"
)

// Phase is one node of the session DAG.
type Phase string

const (
	PhaseUnset          Phase = ""
	PhaseExploration    Phase = "EXPLORATION"
	PhaseSemantic       Phase = "SEMANTIC"
	PhaseVerification   Phase = "VERIFICATION"
	PhaseImpactAnalysis Phase = "IMPACT_ANALYSIS"
	PhaseReady          Phase = "READY"
	PhasePreCommit      Phase = "PRE_COMMIT"
	PhaseQualityReview  Phase = "QUALITY_REVIEW"
	PhaseMerged         Phase = "merged"
)

// GateLevel controls how strictly the investigative phases are enforced.
type GateLevel string

const (
	GateFull GateLevel = "full"
	GateAuto GateLevel = "auto"
)

// Intent is the agent-declared purpose of a session, drawn from a closed
// enumeration — never free text, matching router.py's IntentType.
type Intent string

const (
	IntentExplore   Intent = "EXPLORE"
	IntentModify    Intent = "MODIFY"
	IntentImplement Intent = "IMPLEMENT"
	IntentFix       Intent = "FIX"
	IntentRefactor  Intent = "REFACTOR"
)

// SemanticReason is the closed enumeration submit_semantic requires for
// each hypothesis: why structured exploration failed to resolve the
// symbol on its own, matching session.py's SemanticReason contract.
type SemanticReason string

const (
	ReasonNoDefinitionFound       SemanticReason = "no_definition_found"
	ReasonNoReferenceFound        SemanticReason = "no_reference_found"
	ReasonNoSimilarImplementation SemanticReason = "no_similar_implementation"
	ReasonArchitectureUnknown     SemanticReason = "architecture_unknown"
	ReasonContextFragmented       SemanticReason = "context_fragmented"
)

var validSemanticReasons = map[SemanticReason]bool{
	ReasonNoDefinitionFound:       true,
	ReasonNoReferenceFound:        true,
	ReasonNoSimilarImplementation: true,
	ReasonArchitectureUnknown:     true,
	ReasonContextFragmented:       true,
}

// sessionError is the taxonomy of recoverable errors this package raises;
// a session's phase never advances on any of these.
type sessionError string

func (e sessionError) Error() string { return string(e) }

const (
	ErrNoActiveSession       sessionError = "no_active_session"
	ErrPhaseBlocked          sessionError = "phase_blocked"
	ErrValidationFailed      sessionError = "validation_failed"
	ErrInvalidSemanticReason sessionError = "invalid_semantic_reason"
	ErrWriteTargetBlocked    sessionError = "write_target_blocked"
	ErrQualityReviewRequired sessionError = "quality_review_required"
	ErrStaleBranchesDetected sessionError = "stale_branches_detected"
)

// Hypothesis is one SEMANTIC-phase guess submitted with submit_semantic.
type Hypothesis struct {
	Symbol string
	Reason SemanticReason
}

// VerificationEvidence is one piece of structured proof submitted with
// submit_verification, tying a hypothesis to a concrete tool invocation.
type VerificationEvidence struct {
	Hypothesis string
	Tool       string
	Target     string
	Result     string
	Files      []string
}

// ImpactDisposition is how the agent accounts for one must_verify file in
// submit_impact_analysis.
type ImpactDisposition string

const (
	DispositionWillModify     ImpactDisposition = "will_modify"
	DispositionNoChangeNeeded ImpactDisposition = "no_change_needed"
	DispositionNotAffected    ImpactDisposition = "not_affected"
)

// Confidence is the server-computed (never self-reported) understanding
// signal attached to a completed Query Frame.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// PhaseNecessityAnswer is the agent's structured (never free-text)
// response to check_phase_necessity under gate_level=auto.
type PhaseNecessityAnswer struct {
	NecessaryIsTrue bool
	Reason          string
}

// Session is one in-flight investigation against a repository.
type Session struct {
	mu sync.Mutex

	ID        string
	RepoRoot  string
	GateLevel GateLevel
	Intent    Intent
	Phase     Phase

	QueryFrame *queryframe.Frame

	ExploredFiles map[string]bool

	Hypotheses           []Hypothesis
	VerificationEvidence []VerificationEvidence
	ImpactDispositions   map[string]ImpactDisposition

	BranchName string
	BaseBranch string

	QualityRevertCount int
	QualityRevertMax   int

	ConsecutiveVerificationFailures int
	InterventionThreshold           int
	AwaitingIntervention            bool

	StartedAt time.Time
}

// New creates a session anchored on a raw natural-language task
// description, in the unset phase.
func New(id, repoRoot, rawQuery string, gateLevel GateLevel, intent Intent, qualityRevertMax, interventionThreshold int) *Session {
	return &Session{
		ID:                    id,
		RepoRoot:              repoRoot,
		GateLevel:             gateLevel,
		Intent:                intent,
		Phase:                 PhaseUnset,
		QueryFrame:            queryframe.New(rawQuery),
		ExploredFiles:         make(map[string]bool),
		ImpactDispositions:    make(map[string]ImpactDisposition),
		QualityRevertMax:      qualityRevertMax,
		InterventionThreshold: interventionThreshold,
		StartedAt:             time.Now(),
	}
}

// toolWhitelist enumerates, per phase, the tool names admitted by the
// phase gate. Session-management tools are always admitted regardless of
// phase (checked separately in IsToolAllowed).
var toolWhitelist = map[Phase][]string{
	PhaseExploration: {
		"search_text", "search_files", "find_definitions", "find_references",
		"get_symbols", "get_function_at_line", "analyze_structure",
		"submit_exploration", "set_query_frame",
	},
	PhaseSemantic: {
		"semantic_search", "sync_index", "fetch_chunk_detail", "submit_semantic",
		"validate_symbol_relevance", "confirm_symbol_relevance",
	},
	PhaseVerification: {
		"search_text", "find_references", "get_function_at_line",
		"submit_verification", "record_verification_failure",
	},
	PhaseImpactAnalysis: {
		"analyze_impact", "submit_impact_analysis",
	},
	PhaseReady: {
		"check_write_target", "add_explored_files", "revert_to_exploration",
		"submit_for_review",
	},
	PhasePreCommit: {
		"review_changes", "finalize_changes",
	},
	PhaseQualityReview: {
		"submit_quality_review",
	},
}

var alwaysAllowedTools = map[string]bool{
	"start_session":            true,
	"begin_phase_gate":         true,
	"get_session_status":       true,
	"check_phase_necessity":    true,
	"record_outcome":           true,
	"get_outcome_stats":        true,
	"record_intervention_used": true,
	"get_intervention_status":  true,
	"cleanup_stale_branches":   true,
	"merge_to_base":            true,
	"update_context":           true,
}

// IsToolAllowed reports whether toolName may be invoked in the session's
// current phase.
func (s *Session) IsToolAllowed(toolName string) bool {
	if alwaysAllowedTools[toolName] {
		return true
	}
	for _, name := range toolWhitelist[s.Phase] {
		if name == toolName {
			return true
		}
	}
	return false
}

// CheckTool is the phase gate's entry point: every dispatched tool call
// passes through here first. A rejected call never advances the phase.
func (s *Session) CheckTool(toolName string) error {
	if !s.IsToolAllowed(toolName) {
		return fmt.Errorf("%w: %q is not permitted in phase %q", ErrPhaseBlocked, toolName, s.Phase)
	}
	return nil
}

// BeginPhaseGate starts the investigative walk. quickMode skips straight
// to READY, the "I already know exactly what to change" escape hatch for
// a session whose task branch was just freshly created; otherwise the
// session enters EXPLORATION.
func (s *Session) BeginPhaseGate(quickMode bool) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quickMode {
		s.Phase = PhaseReady
		logging.Session("session %s: quick mode, entering READY directly", s.ID)
		return s.Phase
	}
	s.Phase = PhaseExploration
	logging.Session("session %s: entering EXPLORATION", s.ID)
	return s.Phase
}

// CheckPhaseNecessity is the gate_level=auto juncture: the agent's
// structured yes/no answer (never free text) decides whether an
// investigative phase is skipped. gate_level=full always forces it.
func (s *Session) CheckPhaseNecessity(answer PhaseNecessityAnswer) (bool, error) {
	if s.GateLevel == GateFull {
		return true, nil
	}
	if len(strings.TrimSpace(answer.Reason)) < 10 {
		return false, fmt.Errorf("%w: phase-necessity reason must be at least 10 characters", ErrValidationFailed)
	}
	return answer.NecessaryIsTrue, nil
}

// SubmitExploration records explored files and advances to SEMANTIC. The
// confidence the agent "feels" is never accepted — only the files it
// actually looked at are.
func (s *Session) SubmitExploration(exploredFiles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase != PhaseExploration {
		return fmt.Errorf("%w: submit_exploration requires phase EXPLORATION, session is in %q", ErrPhaseBlocked, s.Phase)
	}
	if len(exploredFiles) == 0 {
		return fmt.Errorf("%w: at least one explored file is required", ErrValidationFailed)
	}
	for _, f := range exploredFiles {
		s.ExploredFiles[filepath.Clean(f)] = true
	}
	s.Phase = PhaseSemantic
	return nil
}

// SubmitSemantic requires at least one hypothesis, each with a
// closed-enum reason, and advances to VERIFICATION.
func (s *Session) SubmitSemantic(hypotheses []Hypothesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase != PhaseSemantic {
		return fmt.Errorf("%w: submit_semantic requires phase SEMANTIC, session is in %q", ErrPhaseBlocked, s.Phase)
	}
	if len(hypotheses) == 0 {
		return fmt.Errorf("%w: at least one hypothesis is required", ErrValidationFailed)
	}
	for _, h := range hypotheses {
		if !validSemanticReasons[h.Reason] {
			return fmt.Errorf("%w: %q is not a recognized semantic reason", ErrInvalidSemanticReason, h.Reason)
		}
	}
	s.Hypotheses = append(s.Hypotheses, hypotheses...)
	s.Phase = PhaseVerification
	return nil
}

// SubmitVerification requires structured evidence for every outstanding
// hypothesis and advances to IMPACT_ANALYSIS. Evidence without a result
// or a target tool is rejected outright — an unexamined hypothesis cannot
// become fact.
func (s *Session) SubmitVerification(evidence []VerificationEvidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase != PhaseVerification {
		return fmt.Errorf("%w: submit_verification requires phase VERIFICATION, session is in %q", ErrPhaseBlocked, s.Phase)
	}
	covered := make(map[string]bool)
	for _, e := range evidence {
		if e.Tool == "" || e.Target == "" || e.Result == "" {
			return fmt.Errorf("%w: verification evidence for %q is missing tool, target, or result", ErrValidationFailed, e.Hypothesis)
		}
		covered[e.Hypothesis] = true
	}
	for _, h := range s.Hypotheses {
		if !covered[h.Symbol] {
			return fmt.Errorf("%w: hypothesis %q has no verification evidence", ErrValidationFailed, h.Symbol)
		}
	}
	s.VerificationEvidence = append(s.VerificationEvidence, evidence...)
	s.ConsecutiveVerificationFailures = 0
	s.Phase = PhaseImpactAnalysis
	return nil
}

// RecordVerificationFailure increments the consecutive-failure counter.
// On the InterventionThreshold-th consecutive failure the session is
// placed in AwaitingIntervention, and every subsequent tool call is
// blocked until record_intervention_used resets the counter.
func (s *Session) RecordVerificationFailure() (shouldIntervene bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ConsecutiveVerificationFailures++
	if s.ConsecutiveVerificationFailures >= s.InterventionThreshold {
		s.AwaitingIntervention = true
		return true
	}
	return false
}

// RecordInterventionUsed clears the awaiting-intervention state and
// resets the failure counter, letting the agent continue.
func (s *Session) RecordInterventionUsed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AwaitingIntervention = false
	s.ConsecutiveVerificationFailures = 0
}

// MustVerifyFiles lists the files the impact analyzer flagged as
// must_verify, computed externally and passed in so this package does not
// need to depend on internal/impact directly.
type MustVerifyFiles []string

// SubmitImpactAnalysis requires every must_verify file to be accounted
// for with a disposition, and a reason whenever that disposition is not
// will_modify, then advances to READY.
func (s *Session) SubmitImpactAnalysis(mustVerify MustVerifyFiles, dispositions map[string]ImpactDisposition, reasons map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase != PhaseImpactAnalysis {
		return fmt.Errorf("%w: submit_impact_analysis requires phase IMPACT_ANALYSIS, session is in %q", ErrPhaseBlocked, s.Phase)
	}
	for _, f := range mustVerify {
		d, ok := dispositions[f]
		if !ok {
			return fmt.Errorf("%w: must_verify file %q has no disposition", ErrValidationFailed, f)
		}
		if d != DispositionWillModify && strings.TrimSpace(reasons[f]) == "" {
			return fmt.Errorf("%w: file %q disposed as %q requires a reason", ErrValidationFailed, f, d)
		}
	}
	for f, d := range dispositions {
		s.ImpactDispositions[f] = d
	}
	s.Phase = PhaseReady
	return nil
}

// Confidence computes the server-side understanding signal from the
// current Query Frame and explored-file set. high requires at least one
// FACT-sourced mapped symbol, no remaining hypothesis slot, and a
// non-empty explored set; medium requires only a mapped symbol of any
// source; everything else is low.
func (s *Session) Confidence() Confidence {
	if len(s.QueryFrame.FactSymbols()) > 0 && len(s.QueryFrame.HypothesisSlots()) == 0 && len(s.ExploredFiles) > 0 {
		return ConfidenceHigh
	}
	if len(s.QueryFrame.MappedSymbols) > 0 {
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// CheckWriteTarget enforces the READY-phase write guard: a write is
// permitted only to a file that was explicitly explored, or a
// subdirectory of one.
func (s *Session) CheckWriteTarget(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase != PhaseReady {
		return fmt.Errorf("%w: writes are only permitted in phase READY, session is in %q", ErrPhaseBlocked, s.Phase)
	}
	clean := filepath.Clean(path)
	if s.ExploredFiles[clean] {
		return nil
	}
	for explored := range s.ExploredFiles {
		if strings.HasPrefix(clean, explored+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q was never explored this session; call add_explored_files or revert_to_exploration", ErrWriteTargetBlocked, path)
}

// AddExploredFiles extends the explored-file set without changing phase —
// the recovery path from write_target_blocked that doesn't require a full
// revert.
func (s *Session) AddExploredFiles(files []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range files {
		s.ExploredFiles[filepath.Clean(f)] = true
	}
}

// RevertToExploration sends a READY-phase session back to EXPLORATION,
// the other write_target_blocked recovery path.
func (s *Session) RevertToExploration() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Phase != PhaseReady {
		return fmt.Errorf("%w: revert_to_exploration is only valid from READY, session is in %q", ErrPhaseBlocked, s.Phase)
	}
	s.Phase = PhaseExploration
	return nil
}

// SubmitForReview advances a READY session to PRE_COMMIT, where branch
// changes are captured and partitioned.
func (s *Session) SubmitForReview() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Phase != PhaseReady {
		return fmt.Errorf("%w: submit_for_review requires phase READY, session is in %q", ErrPhaseBlocked, s.Phase)
	}
	s.Phase = PhasePreCommit
	return nil
}

// FinalizeChanges advances PRE_COMMIT to QUALITY_REVIEW once finalize has
// partitioned and staged/committed the branch's changes.
func (s *Session) FinalizeChanges() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Phase != PhasePreCommit {
		return fmt.Errorf("%w: finalize_changes requires phase PRE_COMMIT, session is in %q", ErrPhaseBlocked, s.Phase)
	}
	s.Phase = PhaseQualityReview
	return nil
}

// QualityReviewOutcome is the agent's verdict in submit_quality_review.
type QualityReviewOutcome string

const (
	QualityApprove QualityReviewOutcome = "approve"
	QualityRevert  QualityReviewOutcome = "revert"
)

// SubmitQualityReview either completes the session (approve) or bounces
// it back to READY (revert), up to QualityRevertMax times. Exceeding the
// cap forces completion regardless of the agent's verdict — a capped
// revert loop cannot stall a session forever.
func (s *Session) SubmitQualityReview(outcome QualityReviewOutcome) (forced bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase != PhaseQualityReview {
		return false, fmt.Errorf("%w: submit_quality_review requires phase QUALITY_REVIEW, session is in %q", ErrPhaseBlocked, s.Phase)
	}

	if outcome == QualityApprove {
		s.Phase = PhaseMerged
		return false, nil
	}

	if s.QualityRevertCount >= s.QualityRevertMax {
		s.Phase = PhaseMerged
		return true, nil
	}
	s.QualityRevertCount++
	s.Phase = PhaseReady
	return false, nil
}

// Status is the get_session_status snapshot.
type Status struct {
	SessionID            string     `json:"session_id"`
	Phase                Phase      `json:"phase"`
	Intent               Intent     `json:"intent"`
	GateLevel            GateLevel  `json:"gate_level"`
	ExploredFileCount    int        `json:"explored_file_count"`
	HypothesisCount      int        `json:"hypothesis_count"`
	Confidence           Confidence `json:"confidence"`
	QualityRevertCount   int        `json:"quality_revert_count"`
	AwaitingIntervention bool       `json:"awaiting_intervention"`
	BranchName           string     `json:"branch_name,omitempty"`
	MissingQuerySlots    []string   `json:"missing_query_slots"`
}

// Status snapshots the session for get_session_status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		SessionID:            s.ID,
		Phase:                s.Phase,
		Intent:               s.Intent,
		GateLevel:            s.GateLevel,
		ExploredFileCount:    len(s.ExploredFiles),
		HypothesisCount:      len(s.Hypotheses),
		Confidence:           s.Confidence(),
		QualityRevertCount:   s.QualityRevertCount,
		AwaitingIntervention: s.AwaitingIntervention,
		BranchName:           s.BranchName,
		MissingQuerySlots:    s.QueryFrame.MissingSlots(),
	}
}
