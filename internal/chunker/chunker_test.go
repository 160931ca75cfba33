package chunker

import "testing"

func TestDetectLanguage(t *testing.T) {
	cases := map[string]string{
		"main.go":        "go",
		"app.py":         "python",
		"index.js":       "javascript",
		"component.tsx":  "typescript",
		"lib.rs":         "rust",
		"README.md":      "",
		"archive.tar.gz": "",
	}
	for path, want := range cases {
		if got := DetectLanguage(path); got != want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestChunkFile_Go(t *testing.T) {
	c := New()
	defer c.Close()

	src := []byte(`package sample

func Add(a, b int) int {
	return a + b
}

type Point struct {
	X int
	Y int
}

func (p Point) String() string {
	return "point"
}
`)

	chunks, err := c.ChunkFile("sample.go", src)
	if err != nil {
		t.Fatalf("ChunkFile: %v", err)
	}

	var gotFunc, gotStruct, gotMethod bool
	for _, ch := range chunks {
		switch {
		case ch.Kind == KindFunction && ch.Name == "Add":
			gotFunc = true
			if len(ch.Parameters) != 2 {
				t.Errorf("expected 2 params for Add, got %v", ch.Parameters)
			}
		case ch.Kind == KindStruct && ch.Name == "Point":
			gotStruct = true
		case ch.Kind == KindMethod && ch.Name == "String":
			gotMethod = true
		}
	}

	if !gotFunc {
		t.Error("expected Add function chunk")
	}
	if !gotStruct {
		t.Error("expected Point struct chunk")
	}
	if !gotMethod {
		t.Error("expected String method chunk")
	}
}

func TestChunkFile_Python(t *testing.T) {
	c := New()
	defer c.Close()

	src := []byte(`import os


class Greeter:
    def greet(self, name):
        return "hi " + name


def standalone():
    pass
`)

	chunks, err := c.ChunkFile("greeter.py", src)
	if err != nil {
		t.Fatalf("ChunkFile: %v", err)
	}

	var gotClass, gotMethod, gotFunc bool
	for _, ch := range chunks {
		switch {
		case ch.Kind == KindClass && ch.Name == "Greeter":
			gotClass = true
		case ch.Kind == KindMethod && ch.Name == "greet":
			gotMethod = true
		case ch.Kind == KindFunction && ch.Name == "standalone":
			gotFunc = true
		}
	}

	if !gotClass || !gotMethod || !gotFunc {
		t.Errorf("missing expected chunks: class=%v method=%v func=%v", gotClass, gotMethod, gotFunc)
	}
}

func TestChunkFile_UnsupportedExtensionFallsBackToWholeFile(t *testing.T) {
	c := New()
	defer c.Close()

	chunks, err := c.ChunkFile("notes.txt", []byte("line one\nline two\n"))
	if err != nil {
		t.Fatalf("ChunkFile: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Kind != KindOther {
		t.Fatalf("expected single whole-file chunk, got %+v", chunks)
	}
}

func TestFunctionAt(t *testing.T) {
	c := New()
	defer c.Close()

	src := []byte(`package sample

func First() {
	x := 1
	_ = x
}

func Second() {
}
`)
	chunks, err := c.ChunkFile("sample.go", src)
	if err != nil {
		t.Fatalf("ChunkFile: %v", err)
	}

	found := FunctionAt(chunks, 4)
	if found == nil || found.Name != "First" {
		t.Fatalf("expected First at line 4, got %+v", found)
	}

	found = FunctionAt(chunks, 8)
	if found == nil || found.Name != "Second" {
		t.Fatalf("expected Second at line 8, got %+v", found)
	}
}
