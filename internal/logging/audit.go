// Package logging provides audit logging for coordinator events: tool
// invocations, phase transitions, branch operations, and outcome records.
// Audit entries are structured JSON lines, one event per line, suitable for
// later aggregation (get_failure_stats, get_outcome_stats).
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AuditEventType identifies the kind of audit event.
type AuditEventType string

const (
	AuditSessionStart AuditEventType = "session_start"
	AuditSessionEnd   AuditEventType = "session_end"
	AuditPhaseEnter   AuditEventType = "phase_enter"
	AuditPhaseRevert  AuditEventType = "phase_revert"

	AuditToolInvoke   AuditEventType = "tool_invoke"
	AuditToolComplete AuditEventType = "tool_complete"
	AuditToolError    AuditEventType = "tool_error"

	AuditBranchSetup   AuditEventType = "branch_setup"
	AuditBranchCommit  AuditEventType = "branch_commit"
	AuditBranchMerge   AuditEventType = "branch_merge"
	AuditBranchCleanup AuditEventType = "branch_cleanup"

	AuditSyncRun   AuditEventType = "sync_run"
	AuditOutcome   AuditEventType = "outcome_recorded"
	AuditIntervene AuditEventType = "intervention_triggered"

	AuditErrorGeneric AuditEventType = "error_generic"
)

// AuditEvent is a single structured audit log entry.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`
	EventType  AuditEventType         `json:"event"`
	SessionID  string                 `json:"session,omitempty"`
	Target     string                 `json:"target,omitempty"`
	Action     string                 `json:"action,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger writes audit events, optionally scoped to a session.
type AuditLogger struct {
	sessionID string
}

// InitAudit opens the audit log file under .code-intel/logs.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global, unscoped audit logger.
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithSession returns an audit logger scoped to a session.
func AuditWithSession(sessionID string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID}
}

// Log writes an audit event as a JSON line.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.SessionID == "" && a.sessionID != "" {
		event.SessionID = a.sessionID
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// ToolExec logs a tool invocation's outcome.
func (a *AuditLogger) ToolExec(toolName, action string, durationMs int64, success bool, errMsg string) {
	eventType := AuditToolComplete
	if !success {
		eventType = AuditToolError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     toolName,
		Action:     action,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("tool %s: %s (%dms, success=%v)", toolName, action, durationMs, success),
	})
}

// PhaseTransition logs a session phase transition.
func (a *AuditLogger) PhaseTransition(fromPhase, toPhase, reason string, forced bool) {
	eventType := AuditPhaseEnter
	if forced {
		eventType = AuditPhaseRevert
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    toPhase,
		Action:    reason,
		Success:   true,
		Fields:    map[string]interface{}{"from": fromPhase, "to": toPhase},
		Message:   fmt.Sprintf("phase %s -> %s (%s)", fromPhase, toPhase, reason),
	})
}

// SessionStart logs session creation.
func (a *AuditLogger) SessionStart(sessionID, baseBranch string) {
	a.Log(AuditEvent{
		EventType: AuditSessionStart,
		SessionID: sessionID,
		Target:    baseBranch,
		Success:   true,
		Message:   fmt.Sprintf("session started: %s (from %s)", sessionID, baseBranch),
	})
}

// SessionEnd logs session completion or abandonment.
func (a *AuditLogger) SessionEnd(sessionID string, durationMs int64, success bool) {
	a.Log(AuditEvent{
		EventType:  AuditSessionEnd,
		SessionID:  sessionID,
		Success:    success,
		DurationMs: durationMs,
		Message:    fmt.Sprintf("session ended: %s (%dms, success=%v)", sessionID, durationMs, success),
	})
}

// Intervention logs a triggered intervention prompt.
func (a *AuditLogger) Intervention(sessionID, reason string, failureCount int) {
	a.Log(AuditEvent{
		EventType: AuditIntervene,
		SessionID: sessionID,
		Action:    reason,
		Success:   false,
		Fields:    map[string]interface{}{"failure_count": failureCount},
		Message:   fmt.Sprintf("intervention: session=%s reason=%s failures=%d", sessionID, reason, failureCount),
	})
}

// Error logs a generic error event.
func (a *AuditLogger) Error(target string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: AuditErrorGeneric,
		Target:    target,
		Success:   false,
		Error:     errMsg,
		Message:   fmt.Sprintf("error in %s: %s", target, errMsg),
	})
}

// escapeString escapes quotes, backslashes, and control characters for
// embedding a string inside a larger quoted structure.
func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
