package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"codeintel/internal/fingerprint"
	"codeintel/internal/logging"
	"codeintel/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the session coordinator over stdio, one JSON request per line",
	Long: `serve reads newline-delimited JSON requests from stdin, each shaped
{"tool": "...", "session_id": "...", "args": {...}}, and writes one
newline-delimited JSON response per request to stdout. This is the
transport an agent harness drives: every phase transition, submission,
and branch operation happens through this single request/response loop.`,
	RunE: runServe,
}

type serveRequest struct {
	Tool      string         `json:"tool"`
	SessionID string         `json:"session_id,omitempty"`
	Args      map[string]any `json:"args"`
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app, err := newApp(cfg, workspace)
	if err != nil {
		return fmt.Errorf("initialize coordinator: %w", err)
	}
	defer app.Close()

	ctx := context.Background()
	watcher, err := fingerprint.NewWatcher(app.fingerprints, []string{".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".rs"})
	if err != nil {
		logging.BootWarn("serve: fingerprint watcher unavailable, falling back to poll-based sync: %v", err)
	} else {
		if err := watcher.Start(ctx); err != nil {
			logging.BootWarn("serve: fingerprint watcher failed to start: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	logging.Boot("serve: coordinator ready for %s", workspace)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	writer := bufio.NewWriter(os.Stdout)
	defer writer.Flush()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req serveRequest
		if err := json.Unmarshal(line, &req); err != nil {
			writeLine(writer, map[string]any{"error": "invalid_request", "message": err.Error()})
			continue
		}
		writeLine(writer, app.handleRequest(ctx, req))
		writer.Flush()
	}
	return scanner.Err()
}

func writeLine(w *bufio.Writer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(map[string]any{"error": "marshal_failed"})
	}
	w.Write(data)
	w.WriteByte('\n')
}

// handleRequest dispatches start_session and begin_phase_gate directly
// (they create or transition a session rather than acting against an
// already-open one) and routes everything else through the dispatcher,
// which enforces the phase gate.
func (a *App) handleRequest(ctx context.Context, req serveRequest) any {
	switch req.Tool {
	case "start_session":
		return a.startSession(req.Args)
	case "begin_phase_gate":
		return a.beginPhaseGate(req.Args)
	default:
		sess, ok := a.sessions[req.SessionID]
		if !ok {
			return map[string]any{"error": "no_active_session", "message": req.SessionID}
		}
		return a.dispatcher.Dispatch(ctx, sess, req.Tool, req.Args)
	}
}

func (a *App) startSession(args map[string]any) any {
	rawQuery, _ := args["query"].(string)
	intent, _ := args["intent"].(string)
	gateLevel, _ := args["gate_level"].(string)
	if gateLevel == "" {
		gateLevel = a.cfg.CodeIntel.GateLevel
	}

	id := uuid.NewString()
	sess := session.New(id, a.repoRoot, rawQuery, session.GateLevel(gateLevel), session.Intent(intent),
		a.cfg.CodeIntel.QualityReviewMaxRevert, a.cfg.CodeIntel.InterventionThreshold)
	a.sessions[id] = sess

	logging.Session("started session %s (intent=%s, gate_level=%s)", id, intent, gateLevel)
	return map[string]any{"session_id": id, "phase": sess.Phase}
}

func (a *App) beginPhaseGate(args map[string]any) any {
	sessionID, _ := args["session_id"].(string)
	sess, ok := a.sessions[sessionID]
	if !ok {
		return map[string]any{"error": "no_active_session", "message": sessionID}
	}
	quickMode, _ := args["quick_mode"].(bool)
	resumeCurrent, _ := args["resume_current"].(bool)

	ctx := context.Background()
	branchName, base, err := a.branches.Setup(ctx, sess.ID, resumeCurrent)
	if err != nil {
		return map[string]any{"error": "branch_setup_failed", "message": err.Error()}
	}
	sess.BranchName, sess.BaseBranch = branchName, base

	phase := sess.BeginPhaseGate(quickMode)
	return map[string]any{"phase": phase, "branch_name": branchName}
}
