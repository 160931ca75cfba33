package queryframe

import "testing"

func TestMissingSlots(t *testing.T) {
	f := New("login fails when password has special characters")
	missing := f.MissingSlots()
	if len(missing) != 4 {
		t.Fatalf("expected all 4 slots missing initially, got %v", missing)
	}

	f.UpdateSlot("target_feature", "login", SourceFact, Evidence{Tool: "explore_codebase"})
	missing = f.MissingSlots()
	if len(missing) != 3 {
		t.Fatalf("expected 3 slots missing after filling one, got %v", missing)
	}
}

func TestHypothesisSlotsAndCompletion(t *testing.T) {
	f := New("raw query")
	f.UpdateSlot("target_feature", "login", SourceFact, Evidence{})
	f.UpdateSlot("trigger_condition", "special chars", SourceHypothesis, Evidence{})
	f.UpdateSlot("observed_issue", "500 error", SourceFact, Evidence{})
	f.UpdateSlot("desired_action", "sanitize input", SourceFact, Evidence{})

	if got := f.HypothesisSlots(); len(got) != 1 || got[0] != "trigger_condition" {
		t.Fatalf("expected trigger_condition as the only hypothesis slot, got %v", got)
	}
	if f.IsComplete() {
		t.Error("expected frame incomplete while a slot remains hypothesis-sourced")
	}

	f.UpdateSlot("trigger_condition", "special chars", SourceFact, Evidence{})
	if !f.IsComplete() {
		t.Error("expected frame complete once all slots are FACT-sourced and no hypothesis symbols remain")
	}
}

func TestAddMappedSymbolNeverDowngrades(t *testing.T) {
	f := New("q")
	f.AddMappedSymbol("Login", SourceHypothesis, 0.5, nil)
	f.AddMappedSymbol("Login", SourceHypothesis, 0.3, nil) // lower confidence, should not overwrite

	got := f.FactSymbols()
	if len(got) != 0 {
		t.Fatalf("expected no fact symbols yet, got %v", got)
	}
	hyp := f.HypothesisSymbols()
	if len(hyp) != 1 || hyp[0].Confidence != 0.5 {
		t.Fatalf("expected confidence to stay at 0.5, got %+v", hyp)
	}

	f.AddMappedSymbol("Login", SourceFact, 0.9, nil)
	fact := f.FactSymbols()
	if len(fact) != 1 || fact[0].Confidence != 0.9 {
		t.Fatalf("expected symbol upgraded to FACT with confidence 0.9, got %+v", fact)
	}
}

func TestValidateSlotAcceptsQuoteSubstring(t *testing.T) {
	f := New("Login fails when the password contains special characters like '%'")

	if err := f.ValidateSlot("observed_issue", "login failure", "Login fails when the password contains special characters"); err != nil {
		t.Fatalf("expected valid slot, got error: %v", err)
	}
}

func TestValidateSlotRejectsQuoteNotInQuery(t *testing.T) {
	f := New("Login fails when the password contains special characters")

	if err := f.ValidateSlot("observed_issue", "login failure", "this text never appears anywhere"); err == nil {
		t.Fatal("expected error for quote not found in raw query")
	}
}

func TestValidateSlotRejectsUnrelatedValue(t *testing.T) {
	f := New("Login fails when the password contains special characters")

	if err := f.ValidateSlot("target_feature", "completely unrelated", "Login fails when the password contains special characters"); err == nil {
		t.Fatal("expected error for value sharing no tokens with quote")
	}
}

func TestAssessRiskAllSlotsMissing(t *testing.T) {
	f := New("q")
	level, reasons := f.AssessRisk("EXPLORE")
	if level != RiskHigh {
		t.Fatalf("expected HIGH risk with no slots filled, got %v (%v)", level, reasons)
	}
}

func TestAssessRiskModifyWithoutTarget(t *testing.T) {
	f := New("q")
	f.UpdateSlot("desired_action", "change the validator", SourceFact, Evidence{})
	f.UpdateSlot("observed_issue", "validator rejects valid input", SourceFact, Evidence{})
	level, _ := f.AssessRisk("MODIFY")
	if level != RiskHigh {
		t.Fatalf("expected HIGH risk for MODIFY intent with no target_feature, got %v", level)
	}
}

func TestAssessRiskNonModifyFreeTextMentioningModifyIsNotFlagged(t *testing.T) {
	f := New("q")
	f.UpdateSlot("desired_action", "modify the validator", SourceFact, Evidence{})
	f.UpdateSlot("observed_issue", "validator rejects valid input", SourceFact, Evidence{})
	level, _ := f.AssessRisk("EXPLORE")
	if level == RiskHigh {
		t.Fatalf("EXPLORE intent with free text mentioning 'modify' must not trigger the MODIFY HIGH-risk rule, got %v", level)
	}
}

func TestAssessRiskHypothesisSlotIsMedium(t *testing.T) {
	f := New("q")
	f.UpdateSlot("target_feature", "login", SourceFact, Evidence{})
	f.UpdateSlot("trigger_condition", "special chars", SourceHypothesis, Evidence{})
	f.UpdateSlot("observed_issue", "fails with 500 error on submit", SourceFact, Evidence{})
	f.UpdateSlot("desired_action", "sanitize", SourceFact, Evidence{})
	level, _ := f.AssessRisk("EXPLORE")
	if level != RiskMedium {
		t.Fatalf("expected MEDIUM risk with a hypothesis slot, got %v", level)
	}
}

func TestGenerateInvestigationGuidanceCoversMissingSlots(t *testing.T) {
	guidance := GenerateInvestigationGuidance([]string{"target_feature", "desired_action"})
	if len(guidance) != 2 {
		t.Fatalf("expected guidance for 2 slots, got %+v", guidance)
	}
	if guidance["target_feature"] == "" || guidance["desired_action"] == "" {
		t.Fatalf("expected non-empty guidance strings, got %+v", guidance)
	}
}
