// Package branch manages the per-session git task branch: a
// self-describing branch that isolates every edit made during one
// session, grounded on the original's tools/branch_manager.py and on the
// git-subprocess/go-git split pattern seen in the retrieved cli package's
// git_operations.go (go-git for reference reads, the git CLI for anything
// that mutates the working tree or needs credential-aware fetch/checkout
// semantics).
package branch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"codeintel/internal/diff"
)

const (
	branchPrefix   = "llm_task_"
	fromSeparator  = "_from_"
	defaultTimeout = 30 * time.Second
)

// ErrAlreadyOnTaskBranch is returned by Setup when the working tree is
// already checked out to a different task branch and resumeCurrent was
// not requested.
var ErrAlreadyOnTaskBranch = errors.New("already on a task branch")

// EncodeBranchName renders the self-describing task branch name. Slashes
// in the base branch (e.g. "release/1.2") are not valid inside the
// encoded segment, so they are doubled-underscore escaped.
func EncodeBranchName(sessionID, base string) string {
	encodedBase := strings.ReplaceAll(base, "/", "__")
	return branchPrefix + sessionID + fromSeparator + encodedBase
}

// DecodeBranchName recovers (sessionID, base) from a task branch name.
// Legacy branches of the form llm_task_{id} (no base) are accepted for
// backward compatibility, with an empty/unknown base.
func DecodeBranchName(name string) (sessionID, base string, ok bool) {
	if !strings.HasPrefix(name, branchPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(name, branchPrefix)
	if idx := strings.Index(rest, fromSeparator); idx >= 0 {
		sessionID = rest[:idx]
		base = strings.ReplaceAll(rest[idx+len(fromSeparator):], "__", "/")
		return sessionID, base, true
	}
	return rest, "", true
}

// IsTaskBranch reports whether name looks like a (current or legacy) task
// branch.
func IsTaskBranch(name string) bool {
	return strings.HasPrefix(name, branchPrefix)
}

// ChangedFile is one path touched since the task branch diverged from its
// base, with its captured unified diff and, for text files, a structured
// hunk breakdown an agent can walk without re-parsing unified diff text.
type ChangedFile struct {
	Path     string      `json:"path"`
	Status   string      `json:"status"` // added, modified, deleted, untracked
	Diff     string      `json:"diff"`
	IsBinary bool        `json:"is_binary"`
	Hunks    []diff.Hunk `json:"hunks,omitempty"`
}

// StaleBranch is one entry in the stale-branch inventory.
type StaleBranch struct {
	SessionID    string `json:"session_id"`
	BaseBranch   string `json:"base_branch"`
	CommitsAhead int    `json:"commits_ahead"`
	IsCurrent    bool   `json:"is_current"`
	Name         string `json:"name"`
}

// Manager drives git operations for one repository working tree.
type Manager struct {
	repoRoot string
}

// New creates a Manager rooted at repoRoot.
func New(repoRoot string) *Manager {
	return &Manager{repoRoot: repoRoot}
}

func (m *Manager) run(ctx context.Context, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.repoRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return stdout.String(), stderr.String(), fmt.Errorf("timed_out: git %s", strings.Join(args, " "))
	}
	return stdout.String(), stderr.String(), err
}

func (m *Manager) openRepo() (*git.Repository, error) {
	return git.PlainOpen(m.repoRoot)
}

// CurrentBranch returns the short name of HEAD, or "" in detached HEAD.
func (m *Manager) CurrentBranch() (string, error) {
	repo, err := m.openRepo()
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

// Setup guards against another task branch already being checked out,
// records the current branch as base, and creates+checks out the new
// task branch. If resumeCurrent is true and the current branch is already
// a task branch, Setup returns its existing name without creating a new
// one.
func (m *Manager) Setup(ctx context.Context, sessionID string, resumeCurrent bool) (branchName, base string, err error) {
	current, err := m.CurrentBranch()
	if err != nil {
		return "", "", err
	}

	if IsTaskBranch(current) {
		if resumeCurrent {
			return current, baseOf(current), nil
		}
		return "", "", ErrAlreadyOnTaskBranch
	}

	branchName = EncodeBranchName(sessionID, current)
	if _, stderr, err := m.run(ctx, "checkout", "-b", branchName); err != nil {
		return "", "", fmt.Errorf("checkout -b %s: %s: %w", branchName, strings.TrimSpace(stderr), err)
	}
	return branchName, current, nil
}

func baseOf(branchName string) string {
	_, base, _ := DecodeBranchName(branchName)
	return base
}

// GetChanges unions three sources of drift against base: the working
// tree (uncommitted), the branch vs base (committed), and untracked
// files — this defeats tools that mutate the working tree directly
// without going through git add.
func (m *Manager) GetChanges(ctx context.Context, base string) ([]ChangedFile, error) {
	seen := make(map[string]*ChangedFile)

	// 1. Uncommitted changes: working tree vs HEAD.
	if out, _, err := m.run(ctx, "diff", "--name-status", "HEAD"); err == nil {
		for path, status := range parseNameStatus(out) {
			seen[path] = &ChangedFile{Path: path, Status: status}
		}
	}

	// 2. Committed changes: branch vs base, preferring triple-dot
	// (merge-base...HEAD) semantics, falling back to a plain two-dot diff
	// if the triple-dot form fails (e.g. base unreachable after a rebase).
	out, _, err := m.run(ctx, "diff", "--name-status", base+"...HEAD")
	if err != nil {
		out, _, err = m.run(ctx, "diff", "--name-status", base, "HEAD")
	}
	if err == nil {
		for path, status := range parseNameStatus(out) {
			if _, ok := seen[path]; !ok {
				seen[path] = &ChangedFile{Path: path, Status: status}
			}
		}
	}

	// 3. Untracked files.
	if out, _, err := m.run(ctx, "ls-files", "--others", "--exclude-standard"); err == nil {
		for _, path := range splitLines(out) {
			if _, ok := seen[path]; !ok {
				seen[path] = &ChangedFile{Path: path, Status: "untracked"}
			}
		}
	}

	var out2 []ChangedFile
	for path, cf := range seen {
		if cf.Status == "untracked" {
			cf.Diff = m.syntheticDiff(ctx, path)
		} else {
			cf.Diff, cf.IsBinary = m.captureDiff(ctx, base, path, cf.Status)
		}
		if !cf.IsBinary {
			cf.Hunks = m.computeHunks(ctx, base, path, cf.Status)
		}
		out2 = append(out2, *cf)
	}
	sort.Slice(out2, func(i, j int) bool { return out2[i].Path < out2[j].Path })
	return out2, nil
}

// catFile returns a path's content at a ref, or "" if it did not exist
// there (added file, or a ref that was never reachable).
func (m *Manager) catFile(ctx context.Context, ref, path string) string {
	out, _, err := m.run(ctx, "show", ref+":"+path)
	if err != nil {
		return ""
	}
	return out
}

// computeHunks derives a structured line-hunk breakdown for one changed
// path, diffing its content at base against its current working-tree
// content — this is the one place internal/diff.ComputeDiff gets
// exercised outside its own tests, giving an agent a parsed alternative to
// the raw unified diff text captureDiff/syntheticDiff already produce.
func (m *Manager) computeHunks(ctx context.Context, base, path, status string) []diff.Hunk {
	oldContent := m.catFile(ctx, base, path)

	var newContent string
	if status != "deleted" {
		if data, err := os.ReadFile(filepath.Join(m.repoRoot, path)); err == nil {
			newContent = string(data)
		} else {
			newContent = m.catFile(ctx, "HEAD", path)
		}
	}

	fd := diff.ComputeDiff(path, path, oldContent, newContent)
	return fd.Hunks
}

func (m *Manager) captureDiff(ctx context.Context, base, path, status string) (diffText string, isBinary bool) {
	var out string
	if status == "deleted" {
		out, _, _ = m.run(ctx, "diff", base+"...HEAD", "--", path)
		if out == "" {
			out, _, _ = m.run(ctx, "diff", "HEAD", "--", path)
		}
	} else {
		out, _, _ = m.run(ctx, "diff", "HEAD", "--", path)
		if strings.TrimSpace(out) == "" {
			out, _, _ = m.run(ctx, "diff", base+"...HEAD", "--", path)
		}
	}
	if strings.Contains(out, "Binary files") {
		return out, true
	}
	return out, false
}

func (m *Manager) syntheticDiff(ctx context.Context, path string) string {
	out, _, _ := m.run(ctx, "diff", "--no-index", "/dev/null", path)
	return out
}

// DeleteBranch force-deletes a task branch, used on the failure outcome
// path where an abandoned session's work is discarded outright.
func (m *Manager) DeleteBranch(ctx context.Context, name string) error {
	if _, stderr, err := m.run(ctx, "branch", "-D", name); err != nil {
		return fmt.Errorf("delete %s: %s: %w", name, strings.TrimSpace(stderr), err)
	}
	return nil
}

func parseNameStatus(out string) map[string]string {
	result := make(map[string]string)
	for _, line := range splitLines(out) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		code, path := fields[0], fields[len(fields)-1]
		switch {
		case strings.HasPrefix(code, "A"):
			result[path] = "added"
		case strings.HasPrefix(code, "D"):
			result[path] = "deleted"
		default:
			result[path] = "modified"
		}
	}
	return result
}

func splitLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// FinalizeResult is the outcome of Finalize.
type FinalizeResult struct {
	CommitHash string `json:"commit_hash,omitempty"`
	Prepared   bool   `json:"prepared"`
}

// Finalize partitions changed paths into keep/discard. Discarded paths are
// reverted to base; everything remaining is staged. If executeCommit is
// true the commit happens immediately and its hash is returned; otherwise
// the staged state is left in place with Prepared=true for a later
// ExecutePreparedCommit call (the quality-review prepare-then-execute
// path).
func (m *Manager) Finalize(ctx context.Context, base string, keep, discard []string, executeCommit bool, message string) (FinalizeResult, error) {
	if len(keep) == 0 && len(discard) == 0 {
		return FinalizeResult{}, nil
	}

	for _, path := range discard {
		if _, stderr, err := m.run(ctx, "checkout", base, "--", path); err != nil {
			return FinalizeResult{}, fmt.Errorf("revert %s to %s: %s: %w", path, base, strings.TrimSpace(stderr), err)
		}
	}

	if len(keep) > 0 {
		args := append([]string{"add", "--"}, keep...)
		if _, stderr, err := m.run(ctx, args...); err != nil {
			return FinalizeResult{}, fmt.Errorf("stage changes: %s: %w", strings.TrimSpace(stderr), err)
		}
	}

	if !executeCommit {
		return FinalizeResult{Prepared: true}, nil
	}

	return m.ExecutePreparedCommit(ctx, message)
}

// ExecutePreparedCommit commits the already-staged state. Idempotent on
// "nothing to commit" — returns an empty hash rather than an error.
func (m *Manager) ExecutePreparedCommit(ctx context.Context, message string) (FinalizeResult, error) {
	out, stderr, err := m.run(ctx, "commit", "-m", message)
	if err != nil {
		if strings.Contains(out, "nothing to commit") || strings.Contains(stderr, "nothing to commit") {
			return FinalizeResult{}, nil
		}
		return FinalizeResult{}, fmt.Errorf("commit_execution_failed: %s: %w", strings.TrimSpace(stderr), err)
	}
	hash, _, err := m.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return FinalizeResult{}, err
	}
	return FinalizeResult{CommitHash: strings.TrimSpace(hash)}, nil
}

// MergeToBase checks out base, merges the task branch with --no-ff, then
// deletes the task branch (-d, falling back to -D on an unmerged-changes
// refusal). On merge failure the task branch is re-checked-out so the
// agent isn't left stranded mid-merge.
func (m *Manager) MergeToBase(ctx context.Context, taskBranch, base string) error {
	if _, stderr, err := m.run(ctx, "checkout", base); err != nil {
		return fmt.Errorf("checkout %s: %s: %w", base, strings.TrimSpace(stderr), err)
	}

	if _, stderr, err := m.run(ctx, "merge", "--no-ff", taskBranch); err != nil {
		_, _, _ = m.run(ctx, "checkout", taskBranch)
		return fmt.Errorf("merge %s into %s: %s: %w", taskBranch, base, strings.TrimSpace(stderr), err)
	}

	if _, stderr, err := m.run(ctx, "branch", "-d", taskBranch); err != nil {
		if _, stderr2, err2 := m.run(ctx, "branch", "-D", taskBranch); err2 != nil {
			return fmt.Errorf("delete %s: %s / %s: %w", taskBranch, strings.TrimSpace(stderr), strings.TrimSpace(stderr2), err2)
		}
	}
	return nil
}

// ListStale enumerates every llm_task_* branch, reporting commits ahead of
// its decoded base and whether it is the currently checked-out branch.
func (m *Manager) ListStale(ctx context.Context) ([]StaleBranch, error) {
	out, _, err := m.run(ctx, "for-each-ref", "--format=%(refname:short)", "refs/heads/"+branchPrefix+"*")
	if err != nil {
		return nil, err
	}
	current, _ := m.CurrentBranch()

	var out2 []StaleBranch
	for _, name := range splitLines(out) {
		sessionID, base, ok := DecodeBranchName(name)
		if !ok {
			continue
		}
		ahead := 0
		if base != "" {
			countOut, _, err := m.run(ctx, "rev-list", "--count", base+".."+name)
			if err == nil {
				ahead, _ = strconv.Atoi(strings.TrimSpace(countOut))
			}
		}
		out2 = append(out2, StaleBranch{
			SessionID:    sessionID,
			BaseBranch:   base,
			CommitsAhead: ahead,
			IsCurrent:    name == current,
			Name:         name,
		})
	}
	return out2, nil
}

// CleanupAction is what Cleanup does with each stale branch.
type CleanupAction string

const (
	CleanupDelete CleanupAction = "delete"
	CleanupMerge  CleanupAction = "merge"
)

// CleanupResult reports per-branch outcomes; errors are collected, never
// fatal, matching cleanup_stale_sessions's best-effort contract.
type CleanupResult struct {
	Processed []string `json:"processed"`
	Errors    []string `json:"errors"`
}

// Cleanup checks out the base of the current task branch (if on one), then
// applies action to every remaining stale branch.
func (m *Manager) Cleanup(ctx context.Context, action CleanupAction) CleanupResult {
	var result CleanupResult

	if current, err := m.CurrentBranch(); err == nil && IsTaskBranch(current) {
		if base := baseOf(current); base != "" {
			_, _, _ = m.run(ctx, "checkout", base)
		}
	}

	stale, err := m.ListStale(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	for _, b := range stale {
		if b.IsCurrent {
			continue
		}
		switch action {
		case CleanupMerge:
			if b.BaseBranch != "" {
				if err := m.MergeToBase(ctx, b.Name, b.BaseBranch); err != nil {
					result.Errors = append(result.Errors, err.Error())
					continue
				}
				result.Processed = append(result.Processed, b.Name)
				continue
			}
			fallthrough
		case CleanupDelete:
			if _, stderr, err := m.run(ctx, "branch", "-D", b.Name); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", b.Name, strings.TrimSpace(stderr)))
				continue
			}
			result.Processed = append(result.Processed, b.Name)
		}
	}
	return result
}

// ensure plumbing import is exercised for branch-ref lookups used by
// CurrentBranch via go-git; kept as a distinct helper so callers needing a
// raw ref (rather than Manager.CurrentBranch's short name) have one.
func (m *Manager) branchRef(name string) (*plumbing.Reference, error) {
	repo, err := m.openRepo()
	if err != nil {
		return nil, err
	}
	return repo.Reference(plumbing.NewBranchReferenceName(name), true)
}

// BranchExists reports whether a local branch exists, using go-git's
// reference lookup rather than shelling out.
func (m *Manager) BranchExists(name string) (bool, error) {
	_, err := m.branchRef(name)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
