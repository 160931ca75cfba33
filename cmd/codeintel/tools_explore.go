package main

import (
	"context"
	"os"
	"path/filepath"

	"codeintel/internal/chunker"
	"codeintel/internal/embedvalid"
	"codeintel/internal/queryframe"
	"codeintel/internal/session"
	"codeintel/internal/tools"
	"codeintel/internal/vectorindex"
)

// registerExploreTools binds the read-only investigation tools admitted
// during EXPLORATION/SEMANTIC/VERIFICATION, grounded on treesitter_tool.py
// and chroma_tool.py's original tool surface.
func (a *App) registerExploreTools() {
	reg := a.registry

	reg.MustRegister(&tools.Tool{
		Name:     "search_text",
		Category: tools.CategoryExploration,
		Schema:   tools.ToolSchema{Required: []string{"pattern"}},
		Execute:  a.toolSearchText,
	})
	reg.MustRegister(&tools.Tool{
		Name:     "search_files",
		Category: tools.CategoryExploration,
		Schema:   tools.ToolSchema{Required: []string{"pattern"}},
		Execute:  a.toolSearchFiles,
	})
	reg.MustRegister(&tools.Tool{
		Name:     "find_definitions",
		Category: tools.CategoryExploration,
		Schema:   tools.ToolSchema{Required: []string{"symbol"}},
		Execute:  a.toolFindDefinitions,
	})
	reg.MustRegister(&tools.Tool{
		Name:     "find_references",
		Category: tools.CategoryExploration,
		Schema:   tools.ToolSchema{Required: []string{"symbol"}},
		Execute:  a.toolFindReferences,
	})
	reg.MustRegister(&tools.Tool{
		Name:     "get_symbols",
		Category: tools.CategoryExploration,
		Schema:   tools.ToolSchema{Required: []string{"path"}},
		Execute:  a.toolGetSymbols,
	})
	reg.MustRegister(&tools.Tool{
		Name:     "get_function_at_line",
		Category: tools.CategoryExploration,
		Schema:   tools.ToolSchema{Required: []string{"path", "line"}},
		Execute:  a.toolGetFunctionAtLine,
	})
	reg.MustRegister(&tools.Tool{
		Name:     "analyze_structure",
		Category: tools.CategoryExploration,
		Schema:   tools.ToolSchema{Required: []string{"path"}},
		Execute:  a.toolAnalyzeStructure,
	})
	reg.MustRegister(&tools.Tool{
		Name:     "semantic_search",
		Category: tools.CategoryExploration,
		Schema:   tools.ToolSchema{Required: []string{"query"}},
		Execute:  a.toolSemanticSearch,
	})
	reg.MustRegister(&tools.Tool{
		Name:     "fetch_chunk_detail",
		Category: tools.CategoryExploration,
		Schema:   tools.ToolSchema{Required: []string{"path", "symbol"}},
		Execute:  a.toolFetchChunkDetail,
	})
	reg.MustRegister(&tools.Tool{
		Name:     "validate_symbol_relevance",
		Category: tools.CategoryExploration,
		Schema:   tools.ToolSchema{Required: []string{"similarity"}},
		Execute:  a.toolValidateSymbolRelevance,
	})
	reg.MustRegister(&tools.Tool{
		Name:     "confirm_symbol_relevance",
		Category: tools.CategorySession,
		Schema:   tools.ToolSchema{Required: []string{"session_id", "symbol"}},
		Execute:  a.toolConfirmSymbolRelevance,
	})
	reg.MustRegister(&tools.Tool{
		Name:     "sync_index",
		Category: tools.CategoryExploration,
		Execute:  a.toolSyncIndex,
	})
	reg.MustRegister(&tools.Tool{
		Name:     "review_changes",
		Category: tools.CategoryBranch,
		Schema:   tools.ToolSchema{Required: []string{"session_id"}},
		Execute:  a.toolReviewChanges,
	})
	reg.MustRegister(&tools.Tool{
		Name:     "finalize_changes",
		Category: tools.CategoryBranch,
		Schema:   tools.ToolSchema{Required: []string{"session_id", "keep"}},
		Execute:  a.toolFinalizeChanges,
	})
	reg.MustRegister(&tools.Tool{
		Name:     "check_phase_necessity",
		Category: tools.CategorySession,
		Schema:   tools.ToolSchema{Required: []string{"session_id", "necessary", "reason"}},
		Execute:  a.toolCheckPhaseNecessity,
	})
}

func (a *App) toolSearchText(ctx context.Context, args map[string]any) (string, error) {
	pattern, _ := args["pattern"].(string)
	matches, err := a.refs.SearchText(ctx, pattern, a.repoRoot)
	if err != nil {
		return "", err
	}
	return asJSON(map[string]any{"matches": matches})
}

func (a *App) toolSearchFiles(ctx context.Context, args map[string]any) (string, error) {
	pattern, _ := args["pattern"].(string)
	files, err := a.refs.SearchFiles(ctx, pattern, a.repoRoot)
	if err != nil {
		return "", err
	}
	return asJSON(map[string]any{"files": files})
}

// toolFindDefinitions narrows a literal-text search for the symbol name to
// the files it actually appears in, then confirms each candidate by
// re-chunking the file and keeping only chunks whose parsed name matches.
func (a *App) toolFindDefinitions(ctx context.Context, args map[string]any) (string, error) {
	symbol, _ := args["symbol"].(string)
	matches, err := a.refs.SearchText(ctx, symbol, a.repoRoot)
	if err != nil {
		return "", err
	}

	seenFiles := make(map[string]bool)
	var defs []chunker.Chunk
	for _, m := range matches {
		if seenFiles[m.File] {
			continue
		}
		seenFiles[m.File] = true
		chunks, err := a.chunkFile(m.File)
		if err != nil {
			continue
		}
		for _, c := range chunks {
			if c.Name == symbol {
				defs = append(defs, c)
			}
		}
	}
	return asJSON(map[string]any{"definitions": defs})
}

func (a *App) toolFindReferences(ctx context.Context, args map[string]any) (string, error) {
	symbol, _ := args["symbol"].(string)
	refs, err := a.refs.FindReferences(ctx, symbol, a.repoRoot)
	if err != nil {
		return "", err
	}
	return asJSON(map[string]any{"references": refs})
}

func (a *App) chunkFile(relOrAbsPath string) ([]chunker.Chunk, error) {
	path := relOrAbsPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.repoRoot, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return a.chunks.ChunkFile(path, content)
}

func (a *App) toolGetSymbols(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	chunks, err := a.chunkFile(path)
	if err != nil {
		return "", err
	}
	return asJSON(map[string]any{"symbols": chunks})
}

func (a *App) toolGetFunctionAtLine(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	line, _ := args["line"].(float64)
	chunks, err := a.chunkFile(path)
	if err != nil {
		return "", err
	}
	fn := chunker.FunctionAt(chunks, int(line))
	return asJSON(map[string]any{"function": fn})
}

func (a *App) toolAnalyzeStructure(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	chunks, err := a.chunkFile(path)
	if err != nil {
		return "", err
	}
	byKind := make(map[chunker.Kind][]string)
	for _, c := range chunks {
		byKind[c.Kind] = append(byKind[c.Kind], c.Name)
	}
	return asJSON(map[string]any{"path": path, "chunk_count": len(chunks), "by_kind": byKind})
}

func (a *App) toolSemanticSearch(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	targetFeature, _ := args["target_feature"].(string)
	collection, _ := args["collection"].(string)
	if collection == "" {
		collection = string(vectorindex.CollectionAuto)
	}
	n := 10
	if v, ok := args["n"].(float64); ok && v > 0 {
		n = int(v)
	}
	result, err := a.vectors.Search(ctx, query, targetFeature, vectorindex.Collection(collection), n)
	if err != nil {
		return "", err
	}
	return asJSON(result)
}

func (a *App) toolFetchChunkDetail(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	symbol, _ := args["symbol"].(string)
	chunks, err := a.chunkFile(path)
	if err != nil {
		return "", err
	}
	for _, c := range chunks {
		if c.Name == symbol {
			return asJSON(c)
		}
	}
	return "", tools.ErrToolNotFound
}

func (a *App) toolValidateSymbolRelevance(ctx context.Context, args map[string]any) (string, error) {
	similarity, _ := args["similarity"].(float64)
	classification := embedvalid.Classify(similarity, embedvalid.DefaultThresholds())
	return asJSON(classification)
}

// toolConfirmSymbolRelevance upgrades a hypothesis-sourced mapped symbol to
// FACT once the agent has independently confirmed it in VERIFICATION.
func (a *App) toolConfirmSymbolRelevance(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	symbol, _ := args["symbol"].(string)
	toolName, _ := args["tool"].(string)
	target, _ := args["target"].(string)
	sess.QueryFrame.AddMappedSymbol(symbol, queryframe.SourceFact, 1.0, &queryframe.Evidence{
		Tool: toolName, ResultSummary: target,
	})
	return asJSON(map[string]any{"symbol": symbol, "source": queryframe.SourceFact})
}

func (a *App) toolSyncIndex(ctx context.Context, args map[string]any) (string, error) {
	report, err := vectorindex.SyncForest(ctx, a.vectors, a.fingerprints, a.chunks, a.repoRoot,
		[]string{".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".rs"}, a.cfg.CodeIntel.DocumentExcludePatterns)
	if err != nil {
		return "", err
	}
	mapCount, err := syncMap(ctx, a)
	if err != nil {
		return "", err
	}
	return asJSON(map[string]any{"forest": report, "agreements_indexed": mapCount})
}

func (a *App) toolReviewChanges(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	changes, err := a.branches.GetChanges(ctx, sess.BaseBranch)
	if err != nil {
		return "", err
	}
	return asJSON(map[string]any{"changes": changes})
}

func (a *App) toolFinalizeChanges(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	keep := stringSlice(args["keep"])
	discard := stringSlice(args["discard"])
	executeCommit, _ := args["execute_commit"].(bool)
	message, _ := args["message"].(string)

	result, err := a.branches.Finalize(ctx, sess.BaseBranch, keep, discard, executeCommit, message)
	if err != nil {
		return "", err
	}
	if err := sess.FinalizeChanges(); err != nil {
		return "", err
	}
	return asJSON(map[string]any{"phase": sess.Phase, "result": result})
}

func (a *App) toolCheckPhaseNecessity(ctx context.Context, args map[string]any) (string, error) {
	sess, err := a.getSession(args)
	if err != nil {
		return "", err
	}
	necessary, _ := args["necessary"].(bool)
	reason, _ := args["reason"].(string)
	required, err := sess.CheckPhaseNecessity(session.PhaseNecessityAnswer{NecessaryIsTrue: necessary, Reason: reason})
	if err != nil {
		return "", err
	}
	return asJSON(map[string]any{"phase_required": required})
}
