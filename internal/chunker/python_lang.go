package chunker

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// extractPythonChunks walks a Python AST extracting classes, functions
// (including methods nested under a class), and imports, matching
// treesitter_tool.py's STRUCTURE_QUERIES for python (class_definition /
// function_definition / import_statement + import_from_statement).
func extractPythonChunks(root *sitter.Node, path string, content []byte) []Chunk {
	var chunks []Chunk

	var walk func(n *sitter.Node, inClass bool)
	walk = func(n *sitter.Node, inClass bool) {
		switch n.Type() {
		case "class_definition":
			if ch := pyClassChunk(n, path, content); ch != nil {
				chunks = append(chunks, *ch)
			}
			for i := 0; i < int(n.ChildCount()); i++ {
				walk(n.Child(i), true)
			}
			return

		case "function_definition":
			kind := KindFunction
			if inClass {
				kind = KindMethod
			}
			if ch := pyFunctionChunk(n, path, content, kind); ch != nil {
				chunks = append(chunks, *ch)
			}

		case "import_statement", "import_from_statement":
			start, end := lineRange(n)
			chunks = append(chunks, Chunk{
				Path:      path,
				Language:  "python",
				Kind:      KindImport,
				Name:      "import",
				StartLine: start,
				EndLine:   end,
				Content:   nodeText(n, content),
			})
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i), inClass)
		}
	}
	walk(root, false)

	return chunks
}

func pyClassChunk(n *sitter.Node, path string, content []byte) *Chunk {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nodeText(nameNode, content)
	start, end := lineRange(n)

	signature := fmt.Sprintf("class %s", name)
	if superclasses := n.ChildByFieldName("superclasses"); superclasses != nil {
		signature += nodeText(superclasses, content)
	}

	return &Chunk{
		Path:      path,
		Language:  "python",
		Kind:      KindClass,
		Name:      name,
		Signature: signature,
		StartLine: start,
		EndLine:   end,
		Content:   nodeText(n, content),
	}
}

func pyFunctionChunk(n *sitter.Node, path string, content []byte, kind Kind) *Chunk {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nodeText(nameNode, content)
	start, end := lineRange(n)

	signature := fmt.Sprintf("def %s", name)
	params := n.ChildByFieldName("parameters")
	if params != nil {
		signature += nodeText(params, content)
	}

	return &Chunk{
		Path:       path,
		Language:   "python",
		Kind:       kind,
		Name:       name,
		Signature:  signature,
		StartLine:  start,
		EndLine:    end,
		Content:    nodeText(n, content),
		Parameters: pyParamNames(params, content),
	}
}

func pyParamNames(params *sitter.Node, content []byte) []string {
	if params == nil {
		return nil
	}
	var names []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier":
			names = append(names, nodeText(p, content))
		case "typed_parameter", "default_parameter", "typed_default_parameter":
			if id := p.ChildByFieldName("name"); id != nil {
				names = append(names, nodeText(id, content))
			} else if p.NamedChildCount() > 0 {
				names = append(names, nodeText(p.NamedChild(0), content))
			}
		}
	}
	return names
}
