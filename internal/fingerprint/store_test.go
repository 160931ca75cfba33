package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return full
}

func TestGetChangedFiles_DetectsAdded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n")

	store := New(dir, ".code-intel")
	changes, err := store.GetChangedFiles([]string{".go"}, nil)
	if err != nil {
		t.Fatalf("GetChangedFiles: %v", err)
	}
	if len(changes.Added) != 1 || changes.Added[0] != "a.go" {
		t.Fatalf("expected a.go added, got %+v", changes)
	}
}

func TestGetChangedFiles_DetectsModifiedAndDeleted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n")

	store := New(dir, ".code-intel")
	if err := store.Record("a.go", 2); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.MarkSynced(); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	// Unchanged: no modification reported.
	changes, err := store.GetChangedFiles([]string{".go"}, nil)
	if err != nil {
		t.Fatalf("GetChangedFiles: %v", err)
	}
	if len(changes.Added)+len(changes.Modified)+len(changes.Deleted) != 0 {
		t.Fatalf("expected no changes, got %+v", changes)
	}

	// Modify: bump mtime and content.
	time.Sleep(10 * time.Millisecond)
	full := writeFile(t, dir, "a.go", "package a\n\nfunc A() {}\n")
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(full, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	changes, err = store.GetChangedFiles([]string{".go"}, nil)
	if err != nil {
		t.Fatalf("GetChangedFiles: %v", err)
	}
	if len(changes.Modified) != 1 || changes.Modified[0] != "a.go" {
		t.Fatalf("expected a.go modified, got %+v", changes)
	}

	// Delete: remove file.
	if err := os.Remove(full); err != nil {
		t.Fatalf("remove: %v", err)
	}
	changes, err = store.GetChangedFiles([]string{".go"}, nil)
	if err != nil {
		t.Fatalf("GetChangedFiles: %v", err)
	}
	if len(changes.Deleted) != 1 || changes.Deleted[0] != "a.go" {
		t.Fatalf("expected a.go deleted, got %+v", changes)
	}
}

func TestGetChangedFiles_RespectsExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "vendor/lib.go", "package lib\n")
	writeFile(t, dir, "main.go", "package main\n")

	store := New(dir, ".code-intel")
	changes, err := store.GetChangedFiles([]string{".go"}, []string{"vendor/**"})
	if err != nil {
		t.Fatalf("GetChangedFiles: %v", err)
	}
	if len(changes.Added) != 1 || changes.Added[0] != "main.go" {
		t.Fatalf("expected only main.go, got %+v", changes)
	}
}

func TestNeedsSync(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, ".code-intel")

	if !store.NeedsSync(time.Hour) {
		t.Fatal("expected NeedsSync true before any sync")
	}

	if err := store.MarkSynced(); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	if store.NeedsSync(time.Hour) {
		t.Fatal("expected NeedsSync false right after sync")
	}
	if !store.NeedsSync(-time.Second) {
		t.Fatal("expected NeedsSync true for a ttl already elapsed")
	}
}

func TestRecordPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n")

	store := New(dir, ".code-intel")
	if err := store.Record("a.go", 3); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := New(dir, ".code-intel")
	fp, ok := reloaded.Get("a.go")
	if !ok {
		t.Fatal("expected fingerprint to survive reload")
	}
	if fp.ChunkCount != 3 {
		t.Fatalf("expected chunk count 3, got %d", fp.ChunkCount)
	}
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n")
	writeFile(t, dir, "b.go", "package b\n")

	store := New(dir, ".code-intel")
	if err := store.Record("a.go", 2); err != nil {
		t.Fatalf("Record a: %v", err)
	}
	if err := store.Record("b.go", 5); err != nil {
		t.Fatalf("Record b: %v", err)
	}

	stats := store.Stats()
	if stats.TotalFiles != 2 {
		t.Fatalf("expected 2 files, got %d", stats.TotalFiles)
	}
	if stats.TotalChunks != 7 {
		t.Fatalf("expected 7 chunks, got %d", stats.TotalChunks)
	}
}
