package chunker

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// extractRustChunks handles function_item, struct_item, enum_item,
// trait_item, impl_item, and use_declaration, per treesitter_tool.py's rust
// STRUCTURE_QUERIES table. impl_item's nested function_items are emitted as
// KindMethod, matching the Go extractor's method/function split.
func extractRustChunks(root *sitter.Node, path string, content []byte) []Chunk {
	var chunks []Chunk

	var walk func(n *sitter.Node, inImpl bool)
	walk = func(n *sitter.Node, inImpl bool) {
		switch n.Type() {
		case "function_item":
			kind := KindFunction
			if inImpl {
				kind = KindMethod
			}
			if ch := rustFunctionChunk(n, path, content, kind); ch != nil {
				chunks = append(chunks, *ch)
			}

		case "struct_item":
			if ch := rustNamedChunk(n, path, content, KindStruct, "struct"); ch != nil {
				chunks = append(chunks, *ch)
			}

		case "enum_item":
			if ch := rustNamedChunk(n, path, content, KindOther, "enum"); ch != nil {
				chunks = append(chunks, *ch)
			}

		case "trait_item":
			if ch := rustNamedChunk(n, path, content, KindInterface, "trait"); ch != nil {
				chunks = append(chunks, *ch)
			}

		case "impl_item":
			for i := 0; i < int(n.ChildCount()); i++ {
				walk(n.Child(i), true)
			}
			return

		case "use_declaration":
			start, end := lineRange(n)
			chunks = append(chunks, Chunk{
				Path: path, Language: "rust", Kind: KindImport, Name: "use",
				StartLine: start, EndLine: end, Content: nodeText(n, content),
			})
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i), inImpl)
		}
	}
	walk(root, false)

	return chunks
}

func rustFunctionChunk(n *sitter.Node, path string, content []byte, kind Kind) *Chunk {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nodeText(nameNode, content)
	start, end := lineRange(n)

	signature := fmt.Sprintf("fn %s", name)
	if params := n.ChildByFieldName("parameters"); params != nil {
		signature += nodeText(params, content)
	}
	if hasPubVisibility(n) {
		signature = "pub " + signature
	}

	return &Chunk{
		Path: path, Language: "rust", Kind: kind, Name: name,
		Signature: signature, StartLine: start, EndLine: end,
		Content: nodeText(n, content),
	}
}

func rustNamedChunk(n *sitter.Node, path string, content []byte, kind Kind, keyword string) *Chunk {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nodeText(nameNode, content)
	start, end := lineRange(n)

	signature := fmt.Sprintf("%s %s", keyword, name)
	if hasPubVisibility(n) {
		signature = "pub " + signature
	}

	return &Chunk{
		Path: path, Language: "rust", Kind: kind, Name: name,
		Signature: signature, StartLine: start, EndLine: end,
		Content: nodeText(n, content),
	}
}

// hasPubVisibility checks for any visibility_modifier child ("pub",
// "pub(crate)", ...); the modifier's text is not inspected.
func hasPubVisibility(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() == "visibility_modifier" {
			return true
		}
	}
	return false
}
