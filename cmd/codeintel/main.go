// Package main implements the codeintel CLI — the process that hosts the
// session coordinator a calling agent drives through start_session,
// begin_phase_gate, and the rest of the tool surface.
//
// # File Index
//
//   - main.go        - entry point, rootCmd, global flags
//   - app.go         - App, the composition root
//   - cmd_serve.go   - serveCmd, the stdio JSON-lines dispatch loop
//   - cmd_sync.go    - syncCmd (forest and map sync), statsCmd (outcome stats)
//   - cmd_branch.go  - cleanupBranchesCmd, listStaleBranchesCmd
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"codeintel/internal/config"
	"codeintel/internal/logging"
)

var (
	workspace  string
	verbose    bool
	configPath string

	// logger is the operator-facing CLI logger, separate from the
	// per-category file logging internal/logging writes to
	// .code-intel/logs/. It reports to stderr for whoever is running the
	// binary interactively or watching it under a process supervisor.
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "codeintel",
	Short: "codeintel — a phase-gated code-intelligence session coordinator",
	Long: `codeintel mediates between an LLM agent and a source repository.

It walks every code-touching session through a fixed investigative DAG
(exploration, semantic hypothesis, verification, impact analysis) before
granting write access, and records the outcome of every session so future
sessions can learn which investigative shortcuts are safe to take.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		} else if abs, err := filepath.Abs(ws); err == nil {
			ws = abs
		}
		workspace = ws

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var zerr error
		logger, zerr = zapCfg.Build()
		if zerr != nil {
			return fmt.Errorf("initialize operator logger: %w", zerr)
		}

		if err := logging.Initialize(ws); err != nil {
			logger.Warn("failed to initialize file logging", zap.Error(err))
		}
		logger.Info("codeintel starting", zap.String("workspace", ws), zap.Bool("verbose", verbose))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(workspace, ".code-intel", "config.yml")
	}
	return config.Load(path)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "repository root (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yml (default: <workspace>/.code-intel/config.yml)")

	rootCmd.AddCommand(serveCmd, syncCmd, statsCmd, cleanupBranchesCmd, listStaleBranchesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("command failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
