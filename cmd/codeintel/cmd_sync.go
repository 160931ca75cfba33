package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"codeintel/internal/vectorindex"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "sync the forest index against the fingerprint store's changed-file set, then re-index the map from saved agreements",
	RunE:  runSync,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "print outcome correlation statistics (get_outcome_stats)",
	RunE:  runStats,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := newApp(cfg, workspace)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := vectorindex.SyncForest(context.Background(), app.vectors, app.fingerprints, app.chunks, app.repoRoot,
		[]string{".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".rs"}, cfg.CodeIntel.DocumentExcludePatterns)
	if err != nil {
		return fmt.Errorf("sync forest: %w", err)
	}
	mapCount, err := syncMap(context.Background(), app)
	if err != nil {
		return fmt.Errorf("sync map: %w", err)
	}
	return json.NewEncoder(os.Stdout).Encode(map[string]any{
		"forest": report,
		"map":    map[string]int{"agreements_indexed": mapCount},
	})
}

// syncMap re-embeds every agreement document under the map directory into
// the vector index's map side, the sibling pass to SyncForest: the forest
// walks source files, the map walks confirmed NL-term-to-symbol agreements.
func syncMap(ctx context.Context, app *App) (int, error) {
	summaries, err := app.agreements.List()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, s := range summaries {
		content, err := os.ReadFile(s.Path)
		if err != nil {
			continue
		}
		docID := filepath.Base(s.Path)
		if err := app.vectors.UpsertMapAgreement(ctx, docID, string(content), s.Frontmatter); err != nil {
			return count, fmt.Errorf("upsert %s: %w", docID, err)
		}
		count++
	}
	return count, nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := newApp(cfg, workspace)
	if err != nil {
		return err
	}
	defer app.Close()

	stats, err := app.outcomes.Stats()
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(stats)
}
