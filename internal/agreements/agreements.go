// Package agreements persists confirmed NL-term-to-symbol pairs as
// Markdown documents under .code-intel/agreements/, grounded on the
// original's tools/agreements.py. Each file doubles as a map-collection
// source document: its YAML frontmatter is what gets embedded and indexed
// by internal/vectorindex, and its body carries the code evidence an agent
// can cite back to the one that confirmed the mapping.
package agreements

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"codeintel/internal/embedvalid"
)

// Data is one confirmed NL-term-to-symbol agreement, ready to render.
type Data struct {
	NLTerm            string
	Symbol            string
	Similarity        float64
	CodeEvidence      string
	SessionID         string
	Intent            string
	RelatedFiles      []string
	QueryFrameSummary map[string]string
}

var filenameSanitizer = regexp.MustCompile(`[^\w\s-]`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// SanitizeFilename strips characters unsafe for a filesystem path and
// collapses whitespace into underscores, capped to maxLength.
func SanitizeFilename(text string, maxLength int) string {
	sanitized := filenameSanitizer.ReplaceAllString(text, "")
	sanitized = whitespaceRun.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_")
	if maxLength > 0 && len(sanitized) > maxLength {
		sanitized = sanitized[:maxLength]
	}
	if sanitized == "" {
		return "unnamed"
	}
	return sanitized
}

// GenerateMarkdown renders one agreement as a frontmatter + body Markdown
// document, the form devrag-map / the map collection can index directly.
func GenerateMarkdown(data Data, learnedAt time.Time) string {
	normalized := embedvalid.SplitSymbolName(data.Symbol)

	var b strings.Builder
	fmt.Fprintf(&b, "---\n")
	fmt.Fprintf(&b, "doc_type: agreement\n")
	fmt.Fprintf(&b, "nl_term: %s\n", data.NLTerm)
	fmt.Fprintf(&b, "symbol: %s\n", data.Symbol)
	fmt.Fprintf(&b, "symbol_normalized: %s\n", normalized)
	fmt.Fprintf(&b, "similarity: %.3f\n", data.Similarity)
	fmt.Fprintf(&b, "session_id: %s\n", data.SessionID)
	fmt.Fprintf(&b, "intent: %s\n", data.Intent)
	fmt.Fprintf(&b, "learned_at: %s\n", learnedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "---\n\n")

	fmt.Fprintf(&b, "# %s → %s\n\n", data.NLTerm, data.Symbol)
	fmt.Fprintf(&b, "**Symbol (split)**: %s\n\n", normalized)
	fmt.Fprintf(&b, "## Code Evidence\n\n")
	if data.CodeEvidence != "" {
		b.WriteString(data.CodeEvidence)
	} else {
		b.WriteString("(none)")
	}
	b.WriteString("\n\n## Related Files\n\n")
	if len(data.RelatedFiles) > 0 {
		for _, f := range data.RelatedFiles {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	} else {
		b.WriteString("(none)")
		b.WriteString("\n")
	}

	if len(data.QueryFrameSummary) > 0 {
		b.WriteString("\n## Query Frame\n\n")
		keys := make([]string, 0, len(data.QueryFrameSummary))
		for k := range data.QueryFrameSummary {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v := data.QueryFrameSummary[k]; v != "" {
				fmt.Fprintf(&b, "- **%s**: %s\n", k, v)
			}
		}
	}

	return b.String()
}

// Summary is the parsed frontmatter of one stored agreement, as returned
// by List.
type Summary struct {
	File        string            `json:"file"`
	Path        string            `json:"path"`
	Frontmatter map[string]string `json:"frontmatter"`
}

// Manager persists and enumerates agreement documents for one repository.
type Manager struct {
	dir string
}

// New creates a Manager persisting to <repoRoot>/<storeDir>/agreements.
func New(repoRoot, storeDir string) *Manager {
	return &Manager{dir: filepath.Join(repoRoot, storeDir, "agreements")}
}

// Dir returns the backing directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Save writes (or overwrites) the Markdown document for one agreement and
// returns its path.
func (m *Manager) Save(data Data) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", err
	}
	filename := SanitizeFilename(data.NLTerm, 50) + "_" + SanitizeFilename(data.Symbol, 50) + ".md"
	path := filepath.Join(m.dir, filename)
	content := GenerateMarkdown(data, time.Now())
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// List enumerates all stored agreements with their parsed frontmatter.
func (m *Manager) List() ([]Summary, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		fm := parseFrontmatter(string(content))
		if fm == nil {
			continue
		}
		out = append(out, Summary{File: e.Name(), Path: path, Frontmatter: fm})
	}
	return out, nil
}

// FindByNLTerm returns stored agreements whose nl_term exactly matches.
func (m *Manager) FindByNLTerm(nlTerm string) ([]Summary, error) {
	all, err := m.List()
	if err != nil {
		return nil, err
	}
	var out []Summary
	for _, a := range all {
		if a.Frontmatter["nl_term"] == nlTerm {
			out = append(out, a)
		}
	}
	return out, nil
}

// Delete removes a stored agreement by filename.
func (m *Manager) Delete(filename string) (bool, error) {
	path := filepath.Join(m.dir, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}

func parseFrontmatter(content string) map[string]string {
	if !strings.HasPrefix(content, "---") {
		return nil
	}
	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return nil
	}
	meta := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(parts[1]), "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		meta[key] = value
	}
	return meta
}
