package agreements

import "testing"

func TestSanitizeFilename(t *testing.T) {
	got := SanitizeFilename("login フォーム check!", 50)
	if got == "" || got == "unnamed" {
		t.Fatalf("expected a sanitized non-empty name, got %q", got)
	}
}

func TestSaveAndList(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, ".code-intel")

	path, err := m.Save(Data{
		NLTerm:       "user auth",
		Symbol:       "AuthenticateUser",
		Similarity:   0.82,
		CodeEvidence: "func AuthenticateUser(...) error { ... }",
		SessionID:    "sess-1",
		Intent:       "MODIFY",
		RelatedFiles: []string{"auth.go"},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if path == "" {
		t.Fatal("expected non-empty path")
	}

	list, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Frontmatter["nl_term"] != "user auth" {
		t.Fatalf("unexpected list: %+v", list)
	}

	found, err := m.FindByNLTerm("user auth")
	if err != nil {
		t.Fatalf("FindByNLTerm: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected one match, got %+v", found)
	}
}

func TestDeleteAgreement(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, ".code-intel")
	_, err := m.Save(Data{NLTerm: "term", Symbol: "Symbol", SessionID: "s"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	list, _ := m.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 agreement before delete, got %d", len(list))
	}
	deleted, err := m.Delete(list[0].File)
	if err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}
	list, _ = m.List()
	if len(list) != 0 {
		t.Fatalf("expected 0 agreements after delete, got %d", len(list))
	}
}
