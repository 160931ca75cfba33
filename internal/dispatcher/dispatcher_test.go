package dispatcher

import (
	"context"
	"testing"

	"codeintel/internal/session"
	"codeintel/internal/tools"
)

func newTestSession() *session.Session {
	return session.New("s1", "/repo", "fix bug", session.GateFull, session.IntentFix, 3, 3)
}

func TestDispatchBlocksOutOfPhaseTool(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(&tools.Tool{
		Name:     "submit_quality_review",
		Category: tools.CategoryReview,
		Execute:  func(ctx context.Context, args map[string]any) (string, error) { return "ok", nil },
	})
	d := New(reg)
	sess := newTestSession()
	sess.BeginPhaseGate(false)

	payload := d.Dispatch(context.Background(), sess, "submit_quality_review", nil)
	if payload.Error != "phase_blocked" {
		t.Fatalf("expected phase_blocked, got %+v", payload)
	}
}

func TestDispatchRunsAllowedTool(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(&tools.Tool{
		Name:     "search_text",
		Category: tools.CategoryExploration,
		Execute:  func(ctx context.Context, args map[string]any) (string, error) { return "3 matches", nil },
	})
	d := New(reg)
	sess := newTestSession()
	sess.BeginPhaseGate(false)

	payload := d.Dispatch(context.Background(), sess, "search_text", nil)
	if payload.Error != "" || payload.Result != "3 matches" {
		t.Fatalf("expected successful dispatch, got %+v", payload)
	}
}

func TestDispatchConvertsPanicToErrorPayload(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(&tools.Tool{
		Name:     "search_text",
		Category: tools.CategoryExploration,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			panic("boom")
		},
	})
	d := New(reg)
	sess := newTestSession()
	sess.BeginPhaseGate(false)

	payload := d.Dispatch(context.Background(), sess, "search_text", nil)
	if payload.Error != "internal_error" {
		t.Fatalf("expected internal_error payload, got %+v", payload)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	reg := tools.NewRegistry()
	d := New(reg)
	sess := newTestSession()
	sess.BeginPhaseGate(false)

	// search_text is phase-whitelisted in EXPLORATION but never registered
	// in this empty registry, so the gate passes and lookup fails instead.
	payload := d.Dispatch(context.Background(), sess, "search_text", nil)
	if payload.Error != "tool_not_found" {
		t.Fatalf("expected tool_not_found, got %+v", payload)
	}
}

func TestDispatchBlockedDuringAwaitingIntervention(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(&tools.Tool{
		Name:     "search_text",
		Category: tools.CategoryExploration,
		Execute:  func(ctx context.Context, args map[string]any) (string, error) { return "ok", nil },
	})
	d := New(reg)
	sess := newTestSession()
	sess.BeginPhaseGate(false)
	sess.InterventionThreshold = 1
	sess.RecordVerificationFailure()

	payload := d.Dispatch(context.Background(), sess, "search_text", nil)
	if payload.Error != "intervention_required" {
		t.Fatalf("expected intervention_required, got %+v", payload)
	}
}
