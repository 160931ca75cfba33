package reffinder

import "testing"

func TestParseRgLine(t *testing.T) {
	file, lineNo, content, ok := parseRgLine("auth/login.go:42:	return AuthenticateUser(ctx, creds)")
	if !ok {
		t.Fatal("expected line to parse")
	}
	if file != "auth/login.go" || lineNo != 42 {
		t.Fatalf("unexpected file/line: %q %d", file, lineNo)
	}
	if content == "" {
		t.Fatal("expected non-empty content")
	}
}

func TestParseRgLineRejectsMalformed(t *testing.T) {
	if _, _, _, ok := parseRgLine("not a valid rg line"); ok {
		t.Fatal("expected malformed line to be rejected")
	}
}

func TestLooksLikeAnnotation(t *testing.T) {
	if !looksLikeAnnotation("func Foo() -> error") {
		t.Error("expected arrow-typed line to look like an annotation")
	}
	if !looksLikeAnnotation("// @param symbol the thing") {
		t.Error("expected @param line to look like an annotation")
	}
	if looksLikeAnnotation("AuthenticateUser(ctx, creds)") {
		t.Error("expected a plain call site not to look like an annotation")
	}
}
