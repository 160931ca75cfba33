package main

import (
	"path/filepath"

	"codeintel/internal/agreements"
	"codeintel/internal/branch"
	"codeintel/internal/chunker"
	"codeintel/internal/config"
	"codeintel/internal/contextprovider"
	"codeintel/internal/dispatcher"
	"codeintel/internal/embedding"
	"codeintel/internal/fingerprint"
	"codeintel/internal/impact"
	"codeintel/internal/learned"
	"codeintel/internal/outcome"
	"codeintel/internal/reffinder"
	"codeintel/internal/session"
	"codeintel/internal/tools"
	"codeintel/internal/vectorindex"
)

// App is the composition root: every cross-cutting service the original
// kept as a module-level global is constructed once here, keyed by the
// resolved repository root, and handed out to tool implementations by
// closure instead of package-level state.
type App struct {
	cfg      *config.Config
	repoRoot string

	fingerprints *fingerprint.Store
	chunks       *chunker.Chunker
	vectors      *vectorindex.Index
	impact       *impact.Analyzer
	context      *contextprovider.Provider
	learnedPairs *learned.Cache
	agreements   *agreements.Manager
	outcomes     *outcome.Log
	branches     *branch.Manager
	refs         *reffinder.Ripgrep

	registry   *tools.Registry
	dispatcher *dispatcher.Dispatcher

	sessions map[string]*session.Session
}

// newApp wires every component package against one repository root,
// constructing lazily-opened resources (the vector index's SQLite handle)
// eagerly since the CLI process lives only as long as one invocation.
func newApp(cfg *config.Config, repoRoot string) (*App, error) {
	storePath := cfg.CodeIntel.StorePath
	dbPath := filepath.Join(repoRoot, storePath, "chroma", "index.db")

	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       cfg.Embedding.TaskType,
	})
	if err != nil {
		return nil, err
	}

	vectors, err := vectorindex.Open(vectorindex.Config{
		DBPath:                   dbPath,
		MapShortCircuitThreshold: cfg.CodeIntel.MapShortCircuitThreshold,
	})
	if err != nil {
		return nil, err
	}
	vectors.SetEngine(engine)

	finder := reffinder.New()

	app := &App{
		cfg:          cfg,
		repoRoot:     repoRoot,
		fingerprints: fingerprint.New(repoRoot, storePath),
		chunks:       chunker.New(),
		vectors:      vectors,
		impact:       impact.New(repoRoot, cfg.CodeIntel, finder),
		context:      contextprovider.New(repoRoot, storePath),
		learnedPairs: learned.New(repoRoot, storePath, cfg.CodeIntel.LearnedPairMaxAgeDays),
		agreements:   agreements.New(repoRoot, storePath),
		outcomes:     outcome.New(repoRoot, storePath),
		branches:     branch.New(repoRoot),
		refs:         finder,
		registry:     tools.NewRegistry(),
		sessions:     make(map[string]*session.Session),
	}
	app.dispatcher = dispatcher.New(app.registry)
	app.registerTools()
	app.registerExploreTools()
	return app, nil
}

func (a *App) Close() {
	a.chunks.Close()
	_ = a.vectors.Close()
}
