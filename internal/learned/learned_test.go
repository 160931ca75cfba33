package learned

import (
	"path/filepath"
	"testing"
)

func TestAddPairAndFindMatches(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, ".code-intel", 30)

	if err := c.AddPair("user auth", "AuthenticateUser", 0.82, "func AuthenticateUser(...)", "sess-1"); err != nil {
		t.Fatalf("AddPair: %v", err)
	}

	matches := c.FindMatches("user auth", []string{"AuthenticateUser", "OtherSymbol"})
	if len(matches) != 1 || matches[0].Symbol != "AuthenticateUser" {
		t.Fatalf("expected one match for AuthenticateUser, got %+v", matches)
	}

	if matches := c.FindMatches("user auth", []string{"Unrelated"}); len(matches) != 0 {
		t.Errorf("expected no matches when symbol not in candidate list, got %+v", matches)
	}
}

func TestAddPairUpdatesExisting(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, ".code-intel", 30)

	if err := c.AddPair("term", "Symbol", 0.5, "", "s1"); err != nil {
		t.Fatalf("AddPair: %v", err)
	}
	if err := c.AddPair("term", "Symbol", 0.9, "evidence", "s2"); err != nil {
		t.Fatalf("AddPair: %v", err)
	}

	stats := c.GetStats()
	if stats.TotalPairs != 1 {
		t.Fatalf("expected a single pair after update, got %d", stats.TotalPairs)
	}

	matches := c.FindMatches("term", []string{"Symbol"})
	if len(matches) != 1 || matches[0].Similarity != 0.9 {
		t.Fatalf("expected updated similarity 0.9, got %+v", matches)
	}
}

func TestPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	c1 := New(dir, ".code-intel", 30)
	if err := c1.AddPair("term", "Symbol", 0.7, "", "s1"); err != nil {
		t.Fatalf("AddPair: %v", err)
	}

	c2 := New(dir, ".code-intel", 30)
	matches := c2.FindMatches("term", []string{"Symbol"})
	if len(matches) != 1 {
		t.Fatalf("expected reload to find the persisted pair, got %+v", matches)
	}

	wantPath := filepath.Join(dir, ".code-intel", "learned_pairs.json")
	if c2.path != wantPath {
		t.Errorf("path = %q, want %q", c2.path, wantPath)
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, ".code-intel", 30)
	if err := c.AddPair("t", "S", 0.5, "", "s"); err != nil {
		t.Fatalf("AddPair: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if stats := c.GetStats(); stats.TotalPairs != 0 {
		t.Errorf("expected 0 pairs after Clear, got %d", stats.TotalPairs)
	}
}
