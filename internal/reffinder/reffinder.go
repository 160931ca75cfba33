// Package reffinder implements internal/impact.ReferenceFinder over
// ripgrep, the bounded-arg-list, hard-timeout subprocess discipline
// described for every external tool invocation: one rg call per symbol,
// capped at defaultTimeout, never left to run unbounded against a large
// tree.
package reffinder

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"codeintel/internal/impact"
)

const defaultTimeout = 30 * time.Second

// Ripgrep is an impact.ReferenceFinder backed by the rg binary.
type Ripgrep struct {
	Timeout time.Duration
}

// New creates a Ripgrep finder with the default 30s timeout.
func New() *Ripgrep {
	return &Ripgrep{Timeout: defaultTimeout}
}

// FindReferences greps repoRoot for literal occurrences of symbol and
// classifies each hit as a caller or a type-hint mention using the
// surrounding line text.
func (r *Ripgrep) FindReferences(ctx context.Context, symbol, repoRoot string) ([]impact.Reference, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "rg", "--line-number", "--no-heading", "--fixed-strings", symbol, repoRoot)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	// rg exits 1 on "no matches", which is not an error condition here.
	_ = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, ctx.Err()
	}

	var refs []impact.Reference
	for _, line := range strings.Split(stdout.String(), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		file, lineNo, content, ok := parseRgLine(line)
		if !ok {
			continue
		}
		kind := impact.RefCaller
		if looksLikeAnnotation(content) {
			kind = impact.RefTypeHint
		}
		refs = append(refs, impact.Reference{
			File:    file,
			Line:    lineNo,
			Context: strings.TrimSpace(content),
			Kind:    kind,
		})
	}
	return refs, nil
}

// Match is one line hit from SearchText.
type Match struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// SearchText greps repoRoot for a regex pattern, the backing
// implementation for the search_text exploration tool.
func (r *Ripgrep) SearchText(ctx context.Context, pattern, repoRoot string) ([]Match, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "rg", "--line-number", "--no-heading", "--max-count", "200", pattern, repoRoot)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, ctx.Err()
	}

	var matches []Match
	for _, line := range strings.Split(stdout.String(), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		file, lineNo, content, ok := parseRgLine(line)
		if !ok {
			continue
		}
		matches = append(matches, Match{File: file, Line: lineNo, Content: strings.TrimSpace(content)})
	}
	return matches, nil
}

// SearchFiles lists files under repoRoot whose path contains namePattern as
// a plain substring, the backing implementation for the search_files
// exploration tool.
func (r *Ripgrep) SearchFiles(ctx context.Context, namePattern, repoRoot string) ([]string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "rg", "--files", repoRoot)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, ctx.Err()
	}

	var files []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		if line == "" {
			continue
		}
		if strings.Contains(line, namePattern) {
			files = append(files, line)
		}
	}
	return files, nil
}

// parseRgLine splits rg's "<path>:<line>:<content>" output format.
func parseRgLine(line string) (file string, lineNo int, content string, ok bool) {
	first := strings.Index(line, ":")
	if first < 0 {
		return "", 0, "", false
	}
	second := strings.Index(line[first+1:], ":")
	if second < 0 {
		return "", 0, "", false
	}
	second += first + 1

	file = line[:first]
	lineStr := line[first+1 : second]
	content = line[second+1:]

	n, err := strconv.Atoi(lineStr)
	if err != nil {
		return "", 0, "", false
	}
	return file, n, content, true
}

// looksLikeAnnotation reports whether a context line reads like a type
// hint (an "->" arrow or an @param/@return/@var doc tag) rather than a call
// site.
func looksLikeAnnotation(content string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.Contains(trimmed, "->") ||
		strings.Contains(trimmed, "@param") ||
		strings.Contains(trimmed, "@return") ||
		strings.Contains(trimmed, "@var")
}
