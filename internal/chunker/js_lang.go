package chunker

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// extractJSChunks handles both javascript and typescript grammars (the
// typescript grammar is a superset for our node-type purposes), matching
// treesitter_tool.py's javascript/typescript STRUCTURE_QUERIES entries:
// function_declaration/arrow_function/function_expression,
// class_declaration, import/export statements, variable declarations, plus
// typescript's interface_declaration and type_alias_declaration.
func extractJSChunks(root *sitter.Node, path string, content []byte) []Chunk {
	var chunks []Chunk
	lang := "javascript"

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			if ch := jsFunctionChunk(n, path, content, lang); ch != nil {
				chunks = append(chunks, *ch)
			}

		case "class_declaration":
			if ch := jsClassChunk(n, path, content, lang); ch != nil {
				chunks = append(chunks, *ch)
			}

		case "interface_declaration":
			lang = "typescript"
			if ch := jsInterfaceChunk(n, path, content); ch != nil {
				chunks = append(chunks, *ch)
			}

		case "type_alias_declaration":
			lang = "typescript"
			if ch := jsTypeAliasChunk(n, path, content); ch != nil {
				chunks = append(chunks, *ch)
			}

		case "import_statement":
			start, end := lineRange(n)
			chunks = append(chunks, Chunk{
				Path: path, Language: lang, Kind: KindImport, Name: "import",
				StartLine: start, EndLine: end, Content: nodeText(n, content),
			})

		case "lexical_declaration", "variable_declaration":
			chunks = append(chunks, jsVariableFunctionChunks(n, path, content, lang)...)
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	return chunks
}

func jsFunctionChunk(n *sitter.Node, path string, content []byte, lang string) *Chunk {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nodeText(nameNode, content)
	start, end := lineRange(n)

	signature := fmt.Sprintf("function %s", name)
	if params := n.ChildByFieldName("parameters"); params != nil {
		signature += nodeText(params, content)
	}

	return &Chunk{
		Path: path, Language: lang, Kind: KindFunction, Name: name,
		Signature: signature, StartLine: start, EndLine: end,
		Content: nodeText(n, content),
	}
}

func jsClassChunk(n *sitter.Node, path string, content []byte, lang string) *Chunk {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nodeText(nameNode, content)
	start, end := lineRange(n)
	return &Chunk{
		Path: path, Language: lang, Kind: KindClass, Name: name,
		Signature: fmt.Sprintf("class %s", name),
		StartLine: start, EndLine: end, Content: nodeText(n, content),
	}
}

func jsInterfaceChunk(n *sitter.Node, path string, content []byte) *Chunk {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nodeText(nameNode, content)
	start, end := lineRange(n)
	return &Chunk{
		Path: path, Language: "typescript", Kind: KindInterface, Name: name,
		Signature: fmt.Sprintf("interface %s", name),
		StartLine: start, EndLine: end, Content: nodeText(n, content),
	}
}

func jsTypeAliasChunk(n *sitter.Node, path string, content []byte) *Chunk {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nodeText(nameNode, content)
	start, end := lineRange(n)
	return &Chunk{
		Path: path, Language: "typescript", Kind: KindOther, Name: name,
		Signature: fmt.Sprintf("type %s", name),
		StartLine: start, EndLine: end, Content: nodeText(n, content),
	}
}

// jsVariableFunctionChunks pulls out `const foo = () => {}` / `function
// expression` assignments as function chunks, since JS/TS routinely defines
// top-level functions this way rather than with `function_declaration`.
func jsVariableFunctionChunks(n *sitter.Node, path string, content []byte, lang string) []Chunk {
	var chunks []Chunk

	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		valueNode := decl.ChildByFieldName("value")
		if nameNode == nil || valueNode == nil {
			continue
		}
		if valueNode.Type() != "arrow_function" && valueNode.Type() != "function" && valueNode.Type() != "function_expression" {
			continue
		}

		name := nodeText(nameNode, content)
		start, end := lineRange(n)
		signature := fmt.Sprintf("const %s = ", name)
		if params := valueNode.ChildByFieldName("parameters"); params != nil {
			signature += nodeText(params, content)
		}

		chunks = append(chunks, Chunk{
			Path: path, Language: lang, Kind: KindFunction, Name: name,
			Signature: signature, StartLine: start, EndLine: end,
			Content: nodeText(n, content),
		})
	}

	return chunks
}
