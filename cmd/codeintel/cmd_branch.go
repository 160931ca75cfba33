package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codeintel/internal/branch"
)

var cleanupAction string

var cleanupBranchesCmd = &cobra.Command{
	Use:   "cleanup-branches",
	Short: "delete or merge every stale llm_task_* branch (cleanup_stale_sessions)",
	RunE:  runCleanupBranches,
}

var listStaleBranchesCmd = &cobra.Command{
	Use:   "list-stale-branches",
	Short: "inventory every llm_task_* branch with commits-ahead and current-branch flags",
	RunE:  runListStaleBranches,
}

func init() {
	cleanupBranchesCmd.Flags().StringVar(&cleanupAction, "action", "delete", "delete|merge")
}

func runCleanupBranches(cmd *cobra.Command, args []string) error {
	mgr := branch.New(workspace)
	result := mgr.Cleanup(context.Background(), branchActionFromString(cleanupAction))
	if len(result.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "cleanup completed with %d error(s)\n", len(result.Errors))
	}
	return json.NewEncoder(os.Stdout).Encode(result)
}

func runListStaleBranches(cmd *cobra.Command, args []string) error {
	mgr := branch.New(workspace)
	stale, err := mgr.ListStale(context.Background())
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(stale)
}
