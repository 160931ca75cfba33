// Package contextprovider loads and maintains the project's essential
// context — design-doc summaries and project rules — persisted under
// .code-intel/context.yml, grounded on the original's
// tools/context_provider.py. This is what start_session hands the agent
// before it has explored anything: a pre-digested map of what the project
// is and what it refuses to let the agent do.
package contextprovider

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DocSummary is a design document's cached summary.
type DocSummary struct {
	File        string `yaml:"file" json:"file"`
	Path        string `yaml:"path" json:"path"`
	Summary     string `yaml:"summary" json:"summary"`
	ExtraNotes  string `yaml:"extra_notes,omitempty" json:"extra_notes,omitempty"`
	ContentHash string `yaml:"content_hash,omitempty" json:"content_hash,omitempty"`
}

// DocResearchConfig scopes where supplementary documentation research may
// look and which review-prompt templates back it.
type DocResearchConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	DocsPath       []string `yaml:"docs_path" json:"docs_path"`
	DefaultPrompts []string `yaml:"default_prompts" json:"default_prompts"`
}

type essentialDocsYAML struct {
	Source    string       `yaml:"source"`
	Summaries []DocSummary `yaml:"summaries"`
}

type projectRulesYAML struct {
	Source      string `yaml:"source"`
	Summary     string `yaml:"summary"`
	ExtraNotes  string `yaml:"extra_notes,omitempty"`
	ContentHash string `yaml:"content_hash,omitempty"`
}

type documentSearchYAML struct {
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

type contextYAML struct {
	LastSynced     string              `yaml:"last_synced,omitempty"`
	EssentialDocs  *essentialDocsYAML  `yaml:"essential_docs,omitempty"`
	ProjectRules   *projectRulesYAML   `yaml:"project_rules,omitempty"`
	DocResearch    *DocResearchConfig  `yaml:"doc_research,omitempty"`
	DocumentSearch *documentSearchYAML `yaml:"document_search,omitempty"`
}

// Context is the assembled essential context returned to the agent at
// session start.
type Context struct {
	DesignDocs             []DocSummary
	DesignDocsSource       string
	ProjectRulesSource     string
	ProjectRulesSummary    string
	ProjectRulesExtraNotes string
	LastSynced             string
	DocResearch            *DocResearchConfig
}

// DocChange records a design doc or project-rules source that has drifted
// from its cached summary hash.
type DocChange struct {
	Type   string `json:"type"` // "essential_doc" or "project_rules"
	Path   string `json:"path"`
	Change string `json:"change"` // "new" or "modified"
}

// Provider loads and persists .code-intel/context.yml for one repository.
type Provider struct {
	repoRoot    string
	contextPath string
}

// New creates a Provider rooted at repoRoot, reading <storeDir>/context.yml.
func New(repoRoot, storeDir string) *Provider {
	return &Provider{
		repoRoot:    repoRoot,
		contextPath: filepath.Join(repoRoot, storeDir, "context.yml"),
	}
}

func (p *Provider) readRaw() (*contextYAML, error) {
	data, err := os.ReadFile(p.contextPath)
	if err != nil {
		return nil, err
	}
	var raw contextYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// LoadContext returns the essential context, or nil if context.yml is
// absent, unreadable, or has no meaningful content.
func (p *Provider) LoadContext() *Context {
	raw, err := p.readRaw()
	if err != nil || raw == nil {
		return nil
	}

	ctx := &Context{LastSynced: raw.LastSynced}
	if raw.EssentialDocs != nil {
		ctx.DesignDocsSource = raw.EssentialDocs.Source
		ctx.DesignDocs = raw.EssentialDocs.Summaries
	}
	if raw.ProjectRules != nil {
		ctx.ProjectRulesSource = raw.ProjectRules.Source
		ctx.ProjectRulesSummary = raw.ProjectRules.Summary
		ctx.ProjectRulesExtraNotes = raw.ProjectRules.ExtraNotes
	}
	if raw.DocResearch != nil {
		ctx.DocResearch = raw.DocResearch
	} else if detected := p.detectDocsPath(); len(detected) > 0 {
		ctx.DocResearch = &DocResearchConfig{Enabled: true, DocsPath: detected, DefaultPrompts: []string{"default.md"}}
	}

	if len(ctx.DesignDocs) == 0 && ctx.ProjectRulesSummary == "" && ctx.DocResearch == nil {
		return nil
	}
	return ctx
}

// CheckDocsChanged compares each cached summary's content hash against the
// file on disk, reporting anything new or modified since the last sync.
func (p *Provider) CheckDocsChanged() []DocChange {
	raw, err := p.readRaw()
	if err != nil || raw == nil {
		return nil
	}

	var changes []DocChange

	if raw.EssentialDocs != nil && raw.EssentialDocs.Source != "" {
		sourceDir := filepath.Join(p.repoRoot, raw.EssentialDocs.Source)
		if info, err := os.Stat(sourceDir); err == nil && info.IsDir() {
			known := make(map[string]DocSummary, len(raw.EssentialDocs.Summaries))
			for _, s := range raw.EssentialDocs.Summaries {
				known[s.Path] = s
			}
			_ = filepath.Walk(sourceDir, func(path string, fi os.FileInfo, err error) error {
				if err != nil || fi == nil || fi.IsDir() || filepath.Ext(path) != ".md" {
					return nil
				}
				rel, _ := filepath.Rel(p.repoRoot, path)
				currentHash := fileHash(path)
				if existing, ok := known[rel]; ok {
					if existing.ContentHash != "" && existing.ContentHash != currentHash {
						changes = append(changes, DocChange{Type: "essential_doc", Path: rel, Change: "modified"})
					}
				} else {
					changes = append(changes, DocChange{Type: "essential_doc", Path: rel, Change: "new"})
				}
				return nil
			})
		}
	}

	if raw.ProjectRules != nil && raw.ProjectRules.Source != "" {
		sourcePath := filepath.Join(p.repoRoot, raw.ProjectRules.Source)
		if _, err := os.Stat(sourcePath); err == nil {
			currentHash := fileHash(sourcePath)
			switch {
			case raw.ProjectRules.ContentHash != "" && raw.ProjectRules.ContentHash != currentHash:
				changes = append(changes, DocChange{Type: "project_rules", Path: raw.ProjectRules.Source, Change: "modified"})
			case raw.ProjectRules.ContentHash == "":
				changes = append(changes, DocChange{Type: "project_rules", Path: raw.ProjectRules.Source, Change: "new"})
			}
		}
	}

	return changes
}

var (
	headerCodeFence = "```"
)

// ExtractDocSummary derives a fallback summary (headers + first paragraph
// of each section) when no LLM-generated summary has been cached yet.
func ExtractDocSummary(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(content), "\n")

	var parts []string
	var section []string
	inCode := false

	flush := func() {
		if p := firstParagraph(section); p != "" {
			parts = append(parts, p)
		}
		section = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, headerCodeFence) {
			inCode = !inCode
			continue
		}
		if inCode {
			continue
		}
		if strings.HasPrefix(line, "#") {
			flush()
			parts = append(parts, strings.TrimSpace(line))
		} else {
			section = append(section, line)
		}
	}
	flush()

	return strings.Join(parts, "\n")
}

func firstParagraph(lines []string) string {
	var paragraph []string
	started := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			started = true
			paragraph = append(paragraph, trimmed)
		} else if started {
			break
		}
	}
	return strings.Join(paragraph, " ")
}

var (
	doRulePattern   = regexp.MustCompile(`(?im)(?:^|\n)#+\s*(?:DO)\b[^\n]*\n((?:[-*]\s*[^\n]+\n?)+)`)
	dontRulePattern = regexp.MustCompile(`(?im)(?:^|\n)#+\s*(?:DON'?T)[^\n]*\n((?:[-*]\s*[^\n]+\n?)+)`)
	bulletPattern   = regexp.MustCompile(`(?m)^[-*]\s+(.+)$`)
)

// ExtractProjectRules pulls DO/DON'T bullet lists out of a rules file
// (e.g. CLAUDE.md); falling back to the first 20 bullet points overall if
// no explicit DO/DON'T headers are present.
func ExtractProjectRules(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	text := string(content)

	var parts []string
	if doMatches := doRulePattern.FindAllStringSubmatch(text, -1); len(doMatches) > 0 {
		parts = append(parts, "DO:")
		for _, m := range doMatches {
			parts = append(parts, bulletLines(m[1])...)
		}
	}
	if dontMatches := dontRulePattern.FindAllStringSubmatch(text, -1); len(dontMatches) > 0 {
		parts = append(parts, "\nDON'T:")
		for _, m := range dontMatches {
			parts = append(parts, bulletLines(m[1])...)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}

	bullets := bulletPattern.FindAllStringSubmatch(text, -1)
	if len(bullets) == 0 {
		return ""
	}
	if len(bullets) > 20 {
		bullets = bullets[:20]
	}
	out := []string{"Rules:"}
	for _, b := range bullets {
		out = append(out, "- "+strings.TrimSpace(b[1]))
	}
	return strings.Join(out, "\n")
}

func bulletLines(block string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}

// SaveContext writes the raw context.yml verbatim, creating the store
// directory if needed.
func (p *Provider) SaveContext(raw map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(p.contextPath), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(p.contextPath, data, 0o644)
}

// UpdateSummaries rewrites the design-doc and project-rules summaries
// (called by update_context after the agent generates fresh ones),
// preserving any hand-authored extra_notes and bumping last_synced.
func (p *Provider) UpdateSummaries(summaries []DocSummary, projectRulesSummary string) error {
	raw, err := p.readRaw()
	if err != nil {
		raw = &contextYAML{}
	}

	if len(summaries) > 0 {
		existing := make(map[string]DocSummary)
		if raw.EssentialDocs != nil {
			for _, s := range raw.EssentialDocs.Summaries {
				existing[s.Path] = s
			}
		}
		var merged []DocSummary
		for _, s := range summaries {
			if prior, ok := existing[s.Path]; ok {
				s.ExtraNotes = prior.ExtraNotes
			}
			merged = append(merged, s)
		}
		source := ""
		if raw.EssentialDocs != nil {
			source = raw.EssentialDocs.Source
		}
		raw.EssentialDocs = &essentialDocsYAML{Source: source, Summaries: merged}
	}

	if projectRulesSummary != "" {
		if raw.ProjectRules == nil {
			raw.ProjectRules = &projectRulesYAML{}
		}
		raw.ProjectRules.Summary = projectRulesSummary
	}

	raw.LastSynced = time.Now().Format(time.RFC3339)

	out := map[string]any{}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return err
	}
	return p.SaveContext(out)
}

func fileHash(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:16]
}

// detectDocsPath auto-discovers documentation locations when context.yml
// carries no explicit doc_research block.
func (p *Provider) detectDocsPath() []string {
	var detected []string

	docsDir := filepath.Join(p.repoRoot, "docs")
	if info, err := os.Stat(docsDir); err == nil && info.IsDir() {
		hasMarkdown := false
		_ = filepath.Walk(docsDir, func(path string, fi os.FileInfo, err error) error {
			if err == nil && fi != nil && !fi.IsDir() && filepath.Ext(path) == ".md" {
				hasMarkdown = true
			}
			return nil
		})
		if hasMarkdown {
			detected = append(detected, "docs/")
		}
	}

	matches, _ := filepath.Glob(filepath.Join(p.repoRoot, "DESIGN*.md"))
	for _, m := range matches {
		detected = append(detected, filepath.Base(m))
	}

	if len(detected) == 0 {
		if _, err := os.Stat(filepath.Join(p.repoRoot, "README.md")); err == nil {
			detected = append(detected, "README.md")
		}
	}

	return detected
}

// GetDocResearchConfig returns the effective doc-research scope, loading
// context.yml if present or falling back to auto-detection.
func (p *Provider) GetDocResearchConfig() *DocResearchConfig {
	if ctx := p.LoadContext(); ctx != nil && ctx.DocResearch != nil {
		return ctx.DocResearch
	}
	if detected := p.detectDocsPath(); len(detected) > 0 {
		return &DocResearchConfig{Enabled: true, DocsPath: detected, DefaultPrompts: []string{"default.md"}}
	}
	return nil
}
