package session

import (
	"errors"
	"testing"
)

func newTestSession() *Session {
	return New("sess-1", "/repo", "fix the login bug", GateFull, IntentFix, 3, 3)
}

func TestPhaseGateBlocksOutOfPhaseTool(t *testing.T) {
	s := newTestSession()
	s.BeginPhaseGate(false)

	if err := s.CheckTool("submit_quality_review"); !errors.Is(err, ErrPhaseBlocked) {
		t.Fatalf("expected phase_blocked, got %v", err)
	}
	if err := s.CheckTool("search_text"); err != nil {
		t.Fatalf("expected search_text allowed in EXPLORATION, got %v", err)
	}
}

func TestQuickModeSkipsToReady(t *testing.T) {
	s := newTestSession()
	phase := s.BeginPhaseGate(true)
	if phase != PhaseReady {
		t.Fatalf("expected quick mode to enter READY, got %v", phase)
	}
}

func TestHappyPathWalksFullDAG(t *testing.T) {
	s := newTestSession()
	s.BeginPhaseGate(false)

	if err := s.SubmitExploration([]string{"auth/login.go"}); err != nil {
		t.Fatalf("SubmitExploration: %v", err)
	}
	if s.Phase != PhaseSemantic {
		t.Fatalf("expected SEMANTIC after exploration, got %v", s.Phase)
	}

	if err := s.SubmitSemantic([]Hypothesis{{Symbol: "Login", Reason: ReasonNoDefinitionFound}}); err != nil {
		t.Fatalf("SubmitSemantic: %v", err)
	}
	if s.Phase != PhaseVerification {
		t.Fatalf("expected VERIFICATION after semantic, got %v", s.Phase)
	}

	if err := s.SubmitVerification([]VerificationEvidence{
		{Hypothesis: "Login", Tool: "find_references", Target: "Login", Result: "3 call sites"},
	}); err != nil {
		t.Fatalf("SubmitVerification: %v", err)
	}
	if s.Phase != PhaseImpactAnalysis {
		t.Fatalf("expected IMPACT_ANALYSIS after verification, got %v", s.Phase)
	}

	if err := s.SubmitImpactAnalysis(
		MustVerifyFiles{"auth/login.go"},
		map[string]ImpactDisposition{"auth/login.go": DispositionWillModify},
		nil,
	); err != nil {
		t.Fatalf("SubmitImpactAnalysis: %v", err)
	}
	if s.Phase != PhaseReady {
		t.Fatalf("expected READY after impact analysis, got %v", s.Phase)
	}

	if err := s.CheckWriteTarget("auth/login.go"); err != nil {
		t.Fatalf("expected write to explored file permitted, got %v", err)
	}

	if err := s.SubmitForReview(); err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}
	if err := s.FinalizeChanges(); err != nil {
		t.Fatalf("FinalizeChanges: %v", err)
	}
	if s.Phase != PhaseQualityReview {
		t.Fatalf("expected QUALITY_REVIEW, got %v", s.Phase)
	}

	forced, err := s.SubmitQualityReview(QualityApprove)
	if err != nil || forced {
		t.Fatalf("SubmitQualityReview approve: forced=%v err=%v", forced, err)
	}
	if s.Phase != PhaseMerged {
		t.Fatalf("expected merged, got %v", s.Phase)
	}
}

func TestSubmitSemanticRejectsUnknownReason(t *testing.T) {
	s := newTestSession()
	s.BeginPhaseGate(false)
	_ = s.SubmitExploration([]string{"a.go"})

	err := s.SubmitSemantic([]Hypothesis{{Symbol: "X", Reason: "made_up_reason"}})
	if !errors.Is(err, ErrInvalidSemanticReason) {
		t.Fatalf("expected invalid_semantic_reason, got %v", err)
	}
}

func TestSubmitVerificationRequiresEveryHypothesisCovered(t *testing.T) {
	s := newTestSession()
	s.BeginPhaseGate(false)
	_ = s.SubmitExploration([]string{"a.go"})
	_ = s.SubmitSemantic([]Hypothesis{
		{Symbol: "A", Reason: ReasonNoDefinitionFound},
		{Symbol: "B", Reason: ReasonNoReferenceFound},
	})

	err := s.SubmitVerification([]VerificationEvidence{
		{Hypothesis: "A", Tool: "find_references", Target: "A", Result: "ok"},
	})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected validation_failed for uncovered hypothesis B, got %v", err)
	}
}

func TestWriteTargetBlockedUntilExploredOrReverted(t *testing.T) {
	s := newTestSession()
	s.Phase = PhaseReady
	s.ExploredFiles["a.go"] = true

	if err := s.CheckWriteTarget("b.go"); !errors.Is(err, ErrWriteTargetBlocked) {
		t.Fatalf("expected write_target_blocked, got %v", err)
	}

	s.AddExploredFiles([]string{"b.go"})
	if err := s.CheckWriteTarget("b.go"); err != nil {
		t.Fatalf("expected write permitted after add_explored_files, got %v", err)
	}

	s2 := newTestSession()
	s2.Phase = PhaseReady
	if err := s2.CheckWriteTarget("c.go"); !errors.Is(err, ErrWriteTargetBlocked) {
		t.Fatalf("expected write_target_blocked, got %v", err)
	}
	if err := s2.RevertToExploration(); err != nil {
		t.Fatalf("RevertToExploration: %v", err)
	}
	if s2.Phase != PhaseExploration {
		t.Fatalf("expected EXPLORATION after revert, got %v", s2.Phase)
	}
}

func TestQualityReviewRevertCapForcesCompletion(t *testing.T) {
	s := newTestSession()
	s.QualityRevertMax = 2
	s.Phase = PhaseQualityReview

	for i := 0; i < 2; i++ {
		forced, err := s.SubmitQualityReview(QualityRevert)
		if err != nil {
			t.Fatalf("SubmitQualityReview revert %d: %v", i, err)
		}
		if forced {
			t.Fatalf("revert %d: expected not forced yet", i)
		}
		if s.Phase != PhaseReady {
			t.Fatalf("expected READY after revert %d, got %v", i, s.Phase)
		}
		s.Phase = PhaseQualityReview
	}

	forced, err := s.SubmitQualityReview(QualityRevert)
	if err != nil {
		t.Fatalf("SubmitQualityReview revert 3: %v", err)
	}
	if !forced {
		t.Fatal("expected revert cap to force completion on the 3rd revert")
	}
	if s.Phase != PhaseMerged {
		t.Fatalf("expected forced completion to merged, got %v", s.Phase)
	}
}

func TestConsecutiveVerificationFailuresTriggerIntervention(t *testing.T) {
	s := newTestSession()
	s.InterventionThreshold = 3

	if s.RecordVerificationFailure() {
		t.Fatal("expected no intervention on 1st failure")
	}
	if s.RecordVerificationFailure() {
		t.Fatal("expected no intervention on 2nd failure")
	}
	if !s.RecordVerificationFailure() {
		t.Fatal("expected intervention on 3rd consecutive failure")
	}
	if !s.AwaitingIntervention {
		t.Fatal("expected AwaitingIntervention set")
	}

	s.RecordInterventionUsed()
	if s.AwaitingIntervention || s.ConsecutiveVerificationFailures != 0 {
		t.Fatal("expected intervention state cleared after record_intervention_used")
	}
}

func TestConfidenceRequiresFactSymbolAndNoHypothesisSlots(t *testing.T) {
	s := newTestSession()
	if s.Confidence() != ConfidenceLow {
		t.Fatalf("expected low confidence on empty frame, got %v", s.Confidence())
	}

	s.QueryFrame.AddMappedSymbol("Login", "HYPOTHESIS", 0.5, nil)
	if s.Confidence() != ConfidenceMedium {
		t.Fatalf("expected medium confidence with a hypothesis-sourced symbol, got %v", s.Confidence())
	}

	s.QueryFrame.AddMappedSymbol("Login", "FACT", 0.9, nil)
	s.ExploredFiles["login.go"] = true
	if s.Confidence() != ConfidenceHigh {
		t.Fatalf("expected high confidence with a fact symbol, no hypothesis slots, and explored files, got %v", s.Confidence())
	}
}
