package impact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"codeintel/internal/config"
)

type fakeRefs struct {
	refs []Reference
}

func (f fakeRefs) FindReferences(ctx context.Context, symbol, repoRoot string) ([]Reference, error) {
	return f.refs, nil
}

func TestRelaxedMarkup(t *testing.T) {
	a := New(t.TempDir(), config.DefaultCodeIntelConfig(), nil)
	res, err := a.Analyze(context.Background(), []string{"styles.css", "README.md"}, "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Mode != "relaxed_markup" {
		t.Fatalf("expected relaxed_markup mode, got %q", res.Mode)
	}
	if len(res.MustVerify) != 0 {
		t.Errorf("expected empty must_verify, got %v", res.MustVerify)
	}
}

func TestMixedMarkupAndLogicDisablesRelaxation(t *testing.T) {
	a := New(t.TempDir(), config.DefaultCodeIntelConfig(), nil)
	res, err := a.Analyze(context.Background(), []string{"styles.css", "view.blade.php"}, "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Mode != "standard" {
		t.Fatalf("expected standard mode when logic markup present, got %q", res.Mode)
	}
}

func TestStaticReferencesExcludeTargetFiles(t *testing.T) {
	dir := t.TempDir()
	refs := fakeRefs{refs: []Reference{
		{File: "login.go", Line: 10, Context: "called from handler"},
		{File: "user_service.go", Line: 20, Context: "var x Login"},
	}}
	a := New(dir, config.DefaultCodeIntelConfig(), refs)
	res, err := a.Analyze(context.Background(), []string{"login.go"}, "login function returns 500")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, f := range res.MustVerify {
		if f == "login.go" {
			t.Errorf("target file should be excluded from must_verify, got %v", res.MustVerify)
		}
	}
}

func TestExtractKeywordsPrioritizesQuotedStrings(t *testing.T) {
	a := New(t.TempDir(), config.DefaultCodeIntelConfig(), nil)
	keywords := a.extractKeywords(`rename "UserAccount" to something else`, nil)
	if len(keywords) == 0 || keywords[0] != "UserAccount" {
		t.Fatalf("expected quoted string first, got %v", keywords)
	}
}

func TestDocumentMentionsFindsKeywordInMarkdown(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "README.md")
	if err := os.WriteFile(docPath, []byte("# Title\nThe AuthService handles login.\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	a := New(dir, config.DefaultCodeIntelConfig(), nil)
	mentions := a.findDocumentMentions([]string{"AuthService"}, nil)
	if len(mentions) != 1 || mentions[0].File != "README.md" {
		t.Fatalf("expected one mention in README.md, got %+v", mentions)
	}
}

func TestExtractBaseNameNormalizesSnakeCase(t *testing.T) {
	if got := extractBaseName("services/cart_service.py"); got != "CartService" {
		t.Errorf("extractBaseName = %q, want CartService", got)
	}
}
