package chunker

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// extractGoChunks walks a Go AST extracting functions, methods, struct and
// interface types, mirroring the teacher's extractGoSymbols field-name
// traversal.
func extractGoChunks(root *sitter.Node, path string, content []byte) []Chunk {
	var chunks []Chunk

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			if ch := goFunctionChunk(n, path, content); ch != nil {
				chunks = append(chunks, *ch)
			}
		case "method_declaration":
			if ch := goMethodChunk(n, path, content); ch != nil {
				chunks = append(chunks, *ch)
			}
		case "type_declaration":
			chunks = append(chunks, goTypeChunks(n, path, content)...)
		case "import_declaration":
			if ch := goImportChunk(n, path, content); ch != nil {
				chunks = append(chunks, *ch)
			}
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	return chunks
}

func goFunctionChunk(n *sitter.Node, path string, content []byte) *Chunk {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nodeText(nameNode, content)
	start, end := lineRange(n)

	signature := fmt.Sprintf("func %s", name)
	if params := n.ChildByFieldName("parameters"); params != nil {
		signature = fmt.Sprintf("func %s%s", name, nodeText(params, content))
	}
	if result := n.ChildByFieldName("result"); result != nil {
		signature += " " + nodeText(result, content)
	}

	return &Chunk{
		Path:       path,
		Language:   "go",
		Kind:       KindFunction,
		Name:       name,
		Signature:  signature,
		StartLine:  start,
		EndLine:    end,
		Content:    nodeText(n, content),
		Parameters: goParamNames(n, content),
	}
}

func goMethodChunk(n *sitter.Node, path string, content []byte) *Chunk {
	nameNode := n.ChildByFieldName("name")
	receiverNode := n.ChildByFieldName("receiver")
	if nameNode == nil || receiverNode == nil {
		return nil
	}
	name := nodeText(nameNode, content)
	receiver := nodeText(receiverNode, content)
	start, end := lineRange(n)

	signature := fmt.Sprintf("func %s %s", receiver, name)
	if params := n.ChildByFieldName("parameters"); params != nil {
		signature += nodeText(params, content)
	}
	if result := n.ChildByFieldName("result"); result != nil {
		signature += " " + nodeText(result, content)
	}

	return &Chunk{
		Path:       path,
		Language:   "go",
		Kind:       KindMethod,
		Name:       name,
		Signature:  signature,
		StartLine:  start,
		EndLine:    end,
		Content:    nodeText(n, content),
		Parameters: goParamNames(n, content),
	}
}

func goTypeChunks(n *sitter.Node, path string, content []byte) []Chunk {
	var chunks []Chunk

	for i := 0; i < int(n.NamedChildCount()); i++ {
		spec := n.NamedChild(i)
		if spec.Type() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		typeNode := spec.ChildByFieldName("type")
		if nameNode == nil {
			continue
		}
		name := nodeText(nameNode, content)
		start, end := lineRange(n)

		kind := KindOther
		signature := fmt.Sprintf("type %s", name)
		if typeNode != nil {
			switch typeNode.Type() {
			case "struct_type":
				kind = KindStruct
				signature += " struct"
			case "interface_type":
				kind = KindInterface
				signature += " interface"
			}
		}

		chunks = append(chunks, Chunk{
			Path:      path,
			Language:  "go",
			Kind:      kind,
			Name:      name,
			Signature: signature,
			StartLine: start,
			EndLine:   end,
			Content:   nodeText(n, content),
		})
	}

	return chunks
}

func goImportChunk(n *sitter.Node, path string, content []byte) *Chunk {
	start, end := lineRange(n)
	return &Chunk{
		Path:      path,
		Language:  "go",
		Kind:      KindImport,
		Name:      "import",
		StartLine: start,
		EndLine:   end,
		Content:   nodeText(n, content),
	}
}

// goParamNames extracts parameter identifier names from a function or
// method's "parameters" field, for the chunk's Parameters slice.
func goParamNames(n *sitter.Node, content []byte) []string {
	params := n.ChildByFieldName("parameters")
	if params == nil {
		return nil
	}

	var names []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		decl := params.NamedChild(i)
		if decl.Type() != "parameter_declaration" {
			continue
		}
		for j := 0; j < int(decl.NamedChildCount()); j++ {
			child := decl.NamedChild(j)
			if child.Type() == "identifier" {
				names = append(names, nodeText(child, content))
			}
		}
	}
	return names
}
