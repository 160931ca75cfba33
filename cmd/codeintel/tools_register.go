package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"codeintel/internal/agreements"
	"codeintel/internal/branch"
	"codeintel/internal/logging"
	"codeintel/internal/outcome"
	"codeintel/internal/queryframe"
	"codeintel/internal/session"
	"codeintel/internal/tools"
)

// registerTools binds every tool name the phase gate knows about to a
// concrete implementation closed over this App's services. This is the
// composition root's second half: internal/tools.Registry only knows how
// to store and invoke named callables, so wiring semantics to names
// happens here, not in the library packages themselves.
func (a *App) registerTools() {
	reg := a.registry

	reg.MustRegister(&tools.Tool{
		Name:     "set_query_frame",
		Category: tools.CategorySession,
		Schema: tools.ToolSchema{
			Required: []string{"session_id", "slot", "value", "quote"},
		},
		Execute: a.toolSetQueryFrame,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "get_session_status",
		Category: tools.CategoryGeneral,
		Schema:   tools.ToolSchema{Required: []string{"session_id"}},
		Execute:  a.toolGetSessionStatus,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "submit_exploration",
		Category: tools.CategorySession,
		Schema:   tools.ToolSchema{Required: []string{"session_id", "explored_files"}},
		Execute:  a.toolSubmitExploration,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "submit_semantic",
		Category: tools.CategorySession,
		Schema:   tools.ToolSchema{Required: []string{"session_id", "hypotheses"}},
		Execute:  a.toolSubmitSemantic,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "submit_verification",
		Category: tools.CategorySession,
		Schema:   tools.ToolSchema{Required: []string{"session_id", "evidence"}},
		Execute:  a.toolSubmitVerification,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "analyze_impact",
		Category: tools.CategoryExploration,
		Schema:   tools.ToolSchema{Required: []string{"session_id", "target_files"}},
		Execute:  a.toolAnalyzeImpact,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "submit_impact_analysis",
		Category: tools.CategorySession,
		Schema:   tools.ToolSchema{Required: []string{"session_id", "dispositions"}},
		Execute:  a.toolSubmitImpactAnalysis,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "check_write_target",
		Category: tools.CategoryGeneral,
		Schema:   tools.ToolSchema{Required: []string{"session_id", "path"}},
		Execute:  a.toolCheckWriteTarget,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "add_explored_files",
		Category: tools.CategoryGeneral,
		Schema:   tools.ToolSchema{Required: []string{"session_id", "files"}},
		Execute:  a.toolAddExploredFiles,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "revert_to_exploration",
		Category: tools.CategoryGeneral,
		Schema:   tools.ToolSchema{Required: []string{"session_id"}},
		Execute:  a.toolRevertToExploration,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "submit_for_review",
		Category: tools.CategoryBranch,
		Schema:   tools.ToolSchema{Required: []string{"session_id"}},
		Execute:  a.toolSubmitForReview,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "submit_quality_review",
		Category: tools.CategoryReview,
		Schema:   tools.ToolSchema{Required: []string{"session_id", "outcome"}},
		Execute:  a.toolSubmitQualityReview,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "record_verification_failure",
		Category: tools.CategoryGeneral,
		Schema:   tools.ToolSchema{Required: []string{"session_id"}},
		Execute:  a.toolRecordVerificationFailure,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "record_intervention_used",
		Category: tools.CategoryGeneral,
		Schema:   tools.ToolSchema{Required: []string{"session_id", "prompt_name"}},
		Execute:  a.toolRecordInterventionUsed,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "record_outcome",
		Category: tools.CategoryGeneral,
		Schema:   tools.ToolSchema{Required: []string{"session_id", "outcome"}},
		Execute:  a.toolRecordOutcome,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "get_outcome_stats",
		Category: tools.CategoryGeneral,
		Execute:  a.toolGetOutcomeStats,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "cleanup_stale_branches",
		Category: tools.CategoryBranch,
		Schema:   tools.ToolSchema{Required: []string{"action"}},
		Execute:  a.toolCleanupStaleBranches,
	})

	reg.MustRegister(&tools.Tool{
		Name:     "merge_to_base",
		Category: tools.CategoryBranch,
		Schema:   tools.ToolSchema{Required: []string{"session_id"}},
		Execute:  a.toolMergeToBase,
	})
}

func (a *App) getSession(args map[string]any) (*session.Session, error) {
	id, _ := args["session_id"].(string)
	sess, ok := a.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no_active_session: %q", id)
	}
	return sess, nil
}

func asJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (a *App) toolSetQueryFrame(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	slot, _ := args["slot"].(string)
	value, _ := args["value"].(string)
	quote, _ := args["quote"].(string)
	source, _ := args["source"].(string)
	if source == "" {
		source = string(queryframe.SourceFact)
	}

	if err := sess.QueryFrame.ValidateSlot(slot, value, quote); err != nil {
		return "", fmt.Errorf("validation_failed: %w", err)
	}
	sess.QueryFrame.UpdateSlot(slot, value, queryframe.SlotSource(strings.ToUpper(source)), queryframe.Evidence{
		Tool: "set_query_frame", ResultSummary: quote,
	})

	level, reasons := sess.QueryFrame.AssessRisk(string(sess.Intent))
	return asJSON(map[string]any{
		"missing_slots": sess.QueryFrame.MissingSlots(),
		"risk_level":    level,
		"risk_reasons":  reasons,
	})
}

func (a *App) toolGetSessionStatus(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	return asJSON(sess.Status())
}

func (a *App) toolSubmitExploration(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	files := stringSlice(args["explored_files"])
	if err := sess.SubmitExploration(files); err != nil {
		return "", err
	}
	return asJSON(map[string]any{"phase": sess.Phase})
}

func (a *App) toolSubmitSemantic(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	raw, _ := args["hypotheses"].([]any)
	hypotheses := make([]session.Hypothesis, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		symbol, _ := m["symbol"].(string)
		reason, _ := m["reason"].(string)
		hypotheses = append(hypotheses, session.Hypothesis{Symbol: symbol, Reason: session.SemanticReason(reason)})
	}
	if err := sess.SubmitSemantic(hypotheses); err != nil {
		return "", err
	}
	return asJSON(map[string]any{"phase": sess.Phase})
}

func (a *App) toolSubmitVerification(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	raw, _ := args["evidence"].([]any)
	evidence := make([]session.VerificationEvidence, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		e := session.VerificationEvidence{}
		e.Hypothesis, _ = m["hypothesis"].(string)
		e.Tool, _ = m["tool"].(string)
		e.Target, _ = m["target"].(string)
		e.Result, _ = m["result"].(string)
		e.Files = stringSlice(m["files"])
		evidence = append(evidence, e)
	}
	if err := sess.SubmitVerification(evidence); err != nil {
		return "", err
	}
	return asJSON(map[string]any{"phase": sess.Phase})
}

func (a *App) toolAnalyzeImpact(ctx context.Context, args map[string]any) (string, error) {
	targetFiles := stringSlice(args["target_files"])
	description, _ := args["change_description"].(string)
	result, err := a.impact.Analyze(ctx, targetFiles, description)
	if err != nil {
		return "", err
	}
	return asJSON(result)
}

func (a *App) toolSubmitImpactAnalysis(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	mustVerify := session.MustVerifyFiles(stringSlice(args["must_verify"]))
	dispositionsRaw, _ := args["dispositions"].(map[string]any)
	dispositions := make(map[string]session.ImpactDisposition, len(dispositionsRaw))
	reasons := make(map[string]string, len(dispositionsRaw))
	for file, v := range dispositionsRaw {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		status, _ := m["status"].(string)
		reason, _ := m["reason"].(string)
		dispositions[file] = session.ImpactDisposition(status)
		reasons[file] = reason
	}
	if err := sess.SubmitImpactAnalysis(mustVerify, dispositions, reasons); err != nil {
		return "", err
	}
	return asJSON(map[string]any{"phase": sess.Phase})
}

func (a *App) toolCheckWriteTarget(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	path, _ := args["path"].(string)
	if err := sess.CheckWriteTarget(path); err != nil {
		return "", err
	}
	return asJSON(map[string]any{"allowed": true})
}

func (a *App) toolAddExploredFiles(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	sess.AddExploredFiles(stringSlice(args["files"]))
	return asJSON(map[string]any{"explored_file_count": len(sess.ExploredFiles)})
}

func (a *App) toolRevertToExploration(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	if err := sess.RevertToExploration(); err != nil {
		return "", err
	}
	return asJSON(map[string]any{"phase": sess.Phase})
}

func (a *App) toolSubmitForReview(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	if err := sess.SubmitForReview(); err != nil {
		return "", err
	}
	changes, err := a.branches.GetChanges(ctx, sess.BaseBranch)
	if err != nil {
		return "", err
	}
	return asJSON(map[string]any{"phase": sess.Phase, "changes": changes})
}

func (a *App) toolSubmitQualityReview(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	outcomeStr, _ := args["outcome"].(string)
	forced, err := sess.SubmitQualityReview(session.QualityReviewOutcome(outcomeStr))
	if err != nil {
		return "", err
	}
	return asJSON(map[string]any{"phase": sess.Phase, "forced_completion": forced})
}

func (a *App) toolRecordVerificationFailure(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	shouldIntervene := sess.RecordVerificationFailure()
	return asJSON(map[string]any{"should_intervene": shouldIntervene})
}

func (a *App) toolRecordInterventionUsed(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	sess.RecordInterventionUsed()
	return asJSON(map[string]any{"awaiting_intervention": sess.AwaitingIntervention})
}

func (a *App) toolRecordOutcome(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	outcomeStr, _ := args["outcome"].(string)
	id, err := a.outcomes.Record(outcomeRecord(sess, outcomeStr))
	if err != nil {
		return "", err
	}
	if outcomeStr == "failure" && sess.BranchName != "" {
		_ = a.branches.DeleteBranch(ctx, sess.BranchName)
	}
	if outcomeStr == "success" {
		a.learnFromOutcome(sess)
	}
	return asJSON(map[string]any{"record_id": id})
}

// learnFromOutcome caches every fact-confirmed symbol mapping as a learned
// pair and exports it as an agreement document, so the next session whose
// raw query reuses the same natural-language term can short-circuit
// straight to the mapped symbol instead of re-walking the phase gate.
// Best-effort: a persistence failure here must never fail record_outcome.
func (a *App) learnFromOutcome(sess *session.Session) {
	nlTerm := sess.QueryFrame.TargetFeature
	if nlTerm == "" {
		nlTerm = sess.QueryFrame.ObservedIssue
	}
	if nlTerm == "" {
		return
	}
	for _, sym := range sess.QueryFrame.FactSymbols() {
		evidenceSummary := ""
		if sym.Evidence != nil {
			evidenceSummary = sym.Evidence.ResultSummary
		}
		if err := a.learnedPairs.AddPair(nlTerm, sym.Name, sym.Confidence, evidenceSummary, sess.ID); err != nil {
			logging.Session("session %s: failed to cache learned pair for %s: %v", sess.ID, sym.Name, err)
			continue
		}
		if _, err := a.agreements.Save(agreements.Data{
			NLTerm:       nlTerm,
			Symbol:       sym.Name,
			Similarity:   sym.Confidence,
			CodeEvidence: evidenceSummary,
			SessionID:    sess.ID,
			Intent:       string(sess.Intent),
			RelatedFiles: stringKeys(sess.ExploredFiles),
		}); err != nil {
			logging.Session("session %s: failed to save agreement for %s: %v", sess.ID, sym.Name, err)
		}
	}
}

func stringKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (a *App) toolGetOutcomeStats(ctx context.Context, args map[string]any) (string, error) {
	stats, err := a.outcomes.Stats()
	if err != nil {
		return "", err
	}
	return asJSON(stats)
}

func (a *App) toolCleanupStaleBranches(ctx context.Context, args map[string]any) (string, error) {
	action, _ := args["action"].(string)
	result := a.branches.Cleanup(ctx, branchActionFromString(action))
	return asJSON(result)
}

func outcomeRecord(sess *session.Session, outcomeStr string) outcome.Record {
	return outcome.Record{
		SessionID:      sess.ID,
		Outcome:        outcome.Outcome(outcomeStr),
		PhaseAtOutcome: string(sess.Phase),
		Intent:         string(sess.Intent),
		SemanticUsed:   len(sess.Hypotheses) > 0,
		ConfidenceWas:  string(sess.Confidence()),
	}
}

func branchActionFromString(action string) branch.CleanupAction {
	if action == string(branch.CleanupMerge) {
		return branch.CleanupMerge
	}
	return branch.CleanupDelete
}

func (a *App) toolMergeToBase(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	if err := a.branches.MergeToBase(ctx, sess.BranchName, sess.BaseBranch); err != nil {
		return "", err
	}
	return asJSON(map[string]any{"merged": true})
}
