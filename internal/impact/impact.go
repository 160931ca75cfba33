// Package impact analyzes the blast radius of a proposed change: direct
// static references to a target file's primary symbol, naming-convention
// siblings (tests, factories, seeders), and keyword mentions in project
// documentation. Grounded on the original's tools/impact_analyzer.py.
//
// Depth is intentionally shallow (direct references only) — deeper,
// transitive investigation is left to the agent via find_references.
package impact

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"codeintel/internal/config"
)

// ReferenceKind distinguishes a plain caller from a type-hint mention.
type ReferenceKind string

const (
	RefCaller   ReferenceKind = "caller"
	RefTypeHint ReferenceKind = "type_hint"
)

// Reference is one static reference site.
type Reference struct {
	File    string        `json:"file"`
	Line    int           `json:"line"`
	Context string        `json:"context,omitempty"`
	Kind    ReferenceKind `json:"kind"`
}

// NamingMatches groups files discovered by naming convention.
type NamingMatches struct {
	Tests     []string `json:"tests,omitempty"`
	Factories []string `json:"factories,omitempty"`
	Seeders   []string `json:"seeders,omitempty"`
}

// DocumentMention aggregates keyword hits within one documentation file.
type DocumentMention struct {
	File        string       `json:"file"`
	MatchCount  int          `json:"match_count"`
	Keywords    []string     `json:"keywords"`
	SampleLines []SampleLine `json:"sample_lines,omitempty"`
}

// SampleLine is one example line backing a DocumentMention.
type SampleLine struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
	Keyword string `json:"keyword"`
}

// Status is the agent's per-file verification verdict for submit_impact_analysis.
type Status string

const (
	StatusWillModify     Status = "will_modify"
	StatusNoChangeNeeded Status = "no_change_needed"
	StatusNotAffected    Status = "not_affected"
)

// Result is the full impact-analysis report for a set of target files.
type Result struct {
	Mode             string            `json:"mode"` // "standard" or "relaxed_markup"
	Depth            string            `json:"depth"`
	Reason           string            `json:"reason,omitempty"`
	StaticReferences []Reference       `json:"static_references,omitempty"`
	NamingMatches    NamingMatches     `json:"naming_convention_matches"`
	DocumentMentions []DocumentMention `json:"document_mentions,omitempty"`
	KeywordsSearched []string          `json:"keywords_searched,omitempty"`
	MustVerify       []string          `json:"must_verify"`
	ShouldVerify     []string          `json:"should_verify"`
}

// ReferenceFinder abstracts the ctags/tree-sitter-backed symbol reference
// search (find_references) so the analyzer stays independent of how the
// agent's exploration tools are implemented.
type ReferenceFinder interface {
	FindReferences(ctx context.Context, symbol, repoRoot string) ([]Reference, error)
}

// Analyzer computes impact reports for a single repository root.
type Analyzer struct {
	repoRoot string
	cfg      config.CodeIntelConfig
	refs     ReferenceFinder
}

// New creates an Analyzer rooted at repoRoot.
func New(repoRoot string, cfg config.CodeIntelConfig, refs ReferenceFinder) *Analyzer {
	return &Analyzer{repoRoot: repoRoot, cfg: cfg, refs: refs}
}

var typeHintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`:\s*%s[\s,\)\]]`),
	regexp.MustCompile(`->\s*%s`),
	regexp.MustCompile(`<%s>`),
	regexp.MustCompile(`\[%s\]`),
	regexp.MustCompile(`@param\s+%s`),
	regexp.MustCompile(`@return\s+%s`),
	regexp.MustCompile(`@var\s+%s`),
}

func looksLikeTypeHint(content, symbol string) bool {
	escaped := regexp.QuoteMeta(symbol)
	for _, tmpl := range typeHintPatterns {
		pattern := regexp.MustCompile(strings.Replace(tmpl.String(), "%s", escaped, 1))
		if pattern.MatchString(content) {
			return true
		}
	}
	return false
}

// Analyze computes the full impact report for targetFiles (repo-relative
// paths), using changeDescription to seed the document-mention keyword
// search.
func (a *Analyzer) Analyze(ctx context.Context, targetFiles []string, changeDescription string) (Result, error) {
	if a.shouldRelaxMarkup(targetFiles) {
		return a.relaxedResult(), nil
	}

	var allRefs []Reference
	var naming NamingMatches

	for _, target := range targetFiles {
		base := extractBaseName(target)
		if base == "" {
			continue
		}

		if a.refs != nil {
			refs, err := a.refs.FindReferences(ctx, base, a.repoRoot)
			if err == nil {
				for _, r := range refs {
					if looksLikeTypeHint(r.Context, base) {
						r.Kind = RefTypeHint
					} else {
						r.Kind = RefCaller
					}
					allRefs = append(allRefs, r)
				}
			}
		}

		matches := a.findNamingMatches(base)
		naming.Tests = append(naming.Tests, matches.Tests...)
		naming.Factories = append(naming.Factories, matches.Factories...)
		naming.Seeders = append(naming.Seeders, matches.Seeders...)
	}

	allRefs = dedupeRefs(allRefs)
	naming.Tests = dedupeStrings(naming.Tests)
	naming.Factories = dedupeStrings(naming.Factories)
	naming.Seeders = dedupeStrings(naming.Seeders)

	keywords := a.extractKeywords(changeDescription, targetFiles)
	mentions := a.findDocumentMentions(keywords, targetFiles)

	targetSet := toAbsSet(a.repoRoot, targetFiles)

	mustVerify := dedupeStrings(callersOf(allRefs))
	mustVerify = excludeAbs(a.repoRoot, mustVerify, targetSet)

	shouldVerify := dedupeStrings(append(append(naming.Tests, naming.Factories...), naming.Seeders...))
	for _, m := range mentions {
		shouldVerify = append(shouldVerify, m.File)
	}
	shouldVerify = dedupeStrings(shouldVerify)
	shouldVerify = excludeAbs(a.repoRoot, shouldVerify, targetSet)

	return Result{
		Mode:             "standard",
		Depth:            "direct_only",
		StaticReferences: allRefs,
		NamingMatches:    naming,
		DocumentMentions: mentions,
		KeywordsSearched: keywords,
		MustVerify:       mustVerify,
		ShouldVerify:     shouldVerify,
	}, nil
}

func callersOf(refs []Reference) []string {
	var out []string
	for _, r := range refs {
		if r.Kind == RefCaller {
			out = append(out, r.File)
		}
	}
	return out
}

func toAbsSet(repoRoot string, files []string) map[string]bool {
	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[absPath(repoRoot, f)] = true
	}
	return set
}

func absPath(repoRoot, rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Clean(filepath.Join(repoRoot, rel))
}

func excludeAbs(repoRoot string, files []string, targetSet map[string]bool) []string {
	var out []string
	for _, f := range files {
		if !targetSet[absPath(repoRoot, f)] {
			out = append(out, f)
		}
	}
	return out
}

func (a *Analyzer) shouldRelaxMarkup(targetFiles []string) bool {
	if len(targetFiles) == 0 {
		return false
	}
	relaxed := a.cfg.RelaxedMarkupExtensions
	logic := a.cfg.LogicMarkupExtensions
	for _, f := range targetFiles {
		full := strings.ToLower(multiSuffix(f))
		suffix := strings.ToLower(filepath.Ext(f))
		if containsString(logic, full) || containsString(logic, suffix) {
			return false
		}
		if !containsString(relaxed, suffix) {
			return false
		}
	}
	return true
}

func multiSuffix(path string) string {
	base := filepath.Base(path)
	idx := strings.Index(base, ".")
	if idx < 0 {
		return ""
	}
	return base[idx:]
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (a *Analyzer) relaxedResult() Result {
	return Result{
		Mode:         "relaxed_markup",
		Depth:        "direct_only",
		Reason:       "all target files are pure markup and cannot contain callable logic",
		MustVerify:   []string{},
		ShouldVerify: []string{},
	}
}

// extractBaseName derives the primary symbol name from a file path:
// app/Models/Product.php -> Product, services/cart_service.py -> CartService.
func extractBaseName(path string) string {
	stem := filepath.Base(path)
	for {
		ext := filepath.Ext(stem)
		if ext == "" {
			break
		}
		stem = strings.TrimSuffix(stem, ext)
	}
	if strings.Contains(stem, "_") {
		parts := strings.Split(stem, "_")
		var b strings.Builder
		for _, p := range parts {
			if p == "" {
				continue
			}
			b.WriteString(strings.ToUpper(p[:1]))
			b.WriteString(p[1:])
		}
		stem = b.String()
	}
	return stem
}

func dedupeRefs(refs []Reference) []Reference {
	seen := make(map[string]bool)
	var out []Reference
	for _, r := range refs {
		key := r.File + ":" + itoa(r.Line)
		if !seen[key] {
			seen[key] = true
			out = append(out, r)
		}
	}
	return out
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		b[i] = '-'
	}
	return string(b[i:])
}

// findNamingMatches globs for conventionally-named sibling files. Patterns
// are intentionally generic; framework-specific conventions are left to the
// agent's inference from project_rules.
func (a *Analyzer) findNamingMatches(base string) NamingMatches {
	var m NamingMatches
	m.Tests = a.globContains(base, []string{"Test", "test"}, "tests")
	m.Factories = a.globContains(base, []string{"Factory", "factory"}, "factories")
	m.Seeders = a.globContains(base, []string{"Seeder", "seeder"}, "seeders")
	return m
}

// globContains walks the repository looking for files whose name contains
// base plus one of the given suffixes, or that live under a directory named
// dirHint alongside base in their name.
func (a *Analyzer) globContains(base string, suffixes []string, dirHint string) []string {
	var out []string
	_ = filepath.Walk(a.repoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		name := info.Name()
		if !strings.Contains(name, base) {
			return nil
		}
		rel, _ := filepath.Rel(a.repoRoot, path)
		matchesSuffix := false
		for _, suf := range suffixes {
			if strings.Contains(name, suf) {
				matchesSuffix = true
				break
			}
		}
		inDirHint := strings.Contains(rel, string(filepath.Separator)+dirHint+string(filepath.Separator)) ||
			strings.HasPrefix(rel, dirHint+string(filepath.Separator))
		if matchesSuffix || inDirHint {
			out = append(out, rel)
		}
		return nil
	})
	return out
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "to": true, "of": true, "in": true, "for": true, "on": true,
	"with": true, "at": true, "by": true, "from": true, "this": true, "that": true,
	"these": true, "those": true, "it": true, "its": true, "and": true, "or": true,
	"but": true, "if": true, "then": true, "else": true, "add": true, "remove": true,
	"change": true, "update": true, "modify": true, "fix": true, "delete": true,
	"file": true, "files": true, "code": true, "field": true, "type": true, "value": true, "name": true,
}

var (
	quotedPattern    = regexp.MustCompile(`"([^"]+)"|'([^']+)'|` + "`([^`]+)`")
	camelCasePattern = regexp.MustCompile(`[A-Z][a-z]+(?:[A-Z][a-z]+)+`)
	snakeCasePattern = regexp.MustCompile(`[a-z]+(?:_[a-z]+)+`)
	wordPattern      = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
)

// extractKeywords mines the change description (and, as a last resort, the
// target file base names) for search terms, in priority order: quoted
// strings, then CamelCase/snake_case technical terms, then generic words.
func (a *Analyzer) extractKeywords(changeDescription string, targetFiles []string) []string {
	maxKeywords := a.cfg.MaxKeywords
	if maxKeywords <= 0 {
		maxKeywords = 10
	}

	var high, medium, low []string
	seen := make(map[string]bool)
	add := func(list *[]string, s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		*list = append(*list, s)
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(changeDescription, -1) {
		for _, g := range m[1:] {
			if len(g) >= 2 {
				add(&high, g)
			}
		}
	}
	for _, m := range camelCasePattern.FindAllString(changeDescription, -1) {
		add(&medium, m)
	}
	for _, m := range snakeCasePattern.FindAllString(changeDescription, -1) {
		add(&medium, m)
	}
	for _, w := range wordPattern.FindAllString(changeDescription, -1) {
		if len(w) >= 4 && !stopWords[strings.ToLower(w)] {
			add(&medium, w)
		}
	}
	for _, f := range targetFiles {
		base := extractBaseName(f)
		if len(base) >= 4 {
			add(&low, base)
		}
	}

	all := append(append(high, medium...), low...)
	if len(all) > maxKeywords {
		all = all[:maxKeywords]
	}
	return all
}

var documentExtensions = map[string]bool{".md": true, ".markdown": true, ".rst": true, ".txt": true}

// findDocumentMentions searches documentation files for keyword hits,
// aggregated per file and capped per the configured limits.
func (a *Analyzer) findDocumentMentions(keywords []string, targetFiles []string) []DocumentMention {
	if len(keywords) == 0 {
		return nil
	}
	maxPerFile := a.cfg.MaxMentionsPerFile
	if maxPerFile <= 0 {
		maxPerFile = 3
	}
	maxFiles := a.cfg.MaxTotalFiles
	if maxFiles <= 0 {
		maxFiles = 20
	}

	targetSet := toAbsSet(a.repoRoot, targetFiles)

	type agg struct {
		matchCount int
		keywords   map[string]bool
		samples    []SampleLine
	}
	results := make(map[string]*agg)

	_ = filepath.Walk(a.repoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if matchesExcludeDir(a.repoRoot, path, a.cfg.DocumentExcludePatterns) {
			return filepath.SkipDir
		}
		if !documentExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if targetSet[filepath.Clean(path)] {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(a.repoRoot, path)
		lines := strings.Split(string(content), "\n")
		for _, kw := range keywords {
			lowerKW := strings.ToLower(kw)
			for i, line := range lines {
				if !strings.Contains(strings.ToLower(line), lowerKW) {
					continue
				}
				entry := results[rel]
				if entry == nil {
					entry = &agg{keywords: make(map[string]bool)}
					results[rel] = entry
				}
				entry.matchCount++
				entry.keywords[kw] = true
				if len(entry.samples) < maxPerFile {
					trimmed := strings.TrimSpace(line)
					if len(trimmed) > 80 {
						trimmed = trimmed[:80]
					}
					entry.samples = append(entry.samples, SampleLine{Line: i + 1, Content: trimmed, Keyword: kw})
				}
			}
		}
		return nil
	})

	var out []DocumentMention
	for file, entry := range results {
		var kws []string
		for k := range entry.keywords {
			kws = append(kws, k)
		}
		sort.Strings(kws)
		out = append(out, DocumentMention{File: file, MatchCount: entry.matchCount, Keywords: kws, SampleLines: entry.samples})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchCount > out[j].MatchCount })
	if len(out) > maxFiles {
		out = out[:maxFiles]
	}
	return out
}

func matchesExcludeDir(repoRoot, path string, patterns []string) bool {
	rel, _ := filepath.Rel(repoRoot, path)
	base := filepath.Base(path)
	for _, p := range patterns {
		p = strings.TrimSuffix(p, "/**")
		if base == p || rel == p || strings.HasPrefix(rel, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
