// Package tools provides the modular tool surface the dispatcher (C11)
// exposes to the calling agent: exploration/search tools, session submission
// tools, and branch tools. Every tool is phase-gated by internal/session
// before Execute runs.
package tools

import (
	"context"
)

// ToolCategory classifies tools for phase-gate and intent filtering.
type ToolCategory string

const (
	// CategoryExploration covers search_text, find_definitions,
	// semantic_search, get_symbols — read-only investigation tools.
	CategoryExploration ToolCategory = "/exploration"

	// CategorySession covers set_query_frame, submit_exploration,
	// submit_semantic, submit_verification, submit_impact_analysis,
	// confirm_symbol_relevance, check_phase_necessity — the phase-submission
	// tools.
	CategorySession ToolCategory = "/session"

	// CategoryBranch covers review_changes, finalize_changes,
	// submit_for_review, cleanup_stale_branches, merge_to_base.
	CategoryBranch ToolCategory = "/branch"

	// CategoryReview covers submit_quality_review.
	CategoryReview ToolCategory = "/review"

	// CategoryGeneral is for tools usable in any phase.
	CategoryGeneral ToolCategory = "/general"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Default     any            `json:"default,omitempty"`
	Enum        []any          `json:"enum,omitempty"`
	Items       *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	Required   []string            `json:"required"`
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines a modular tool the dispatcher can route to.
type Tool struct {
	// Name is the unique identifier for the tool, matching the names used
	// in phase whitelists (internal/session).
	Name string

	Description string
	Category    ToolCategory
	Execute     ExecuteFunc
	Schema      ToolSchema

	// Priority is used when multiple tools match a filter; higher wins.
	Priority int

	// RequiresContext indicates the tool needs an active session.
	RequiresContext bool
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// WithPriority returns a copy of the tool with the given priority.
func (t *Tool) WithPriority(priority int) *Tool {
	cp := *t
	cp.Priority = priority
	return &cp
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	ToolName   string
	Result     string
	Error      error
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}
