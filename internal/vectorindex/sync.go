package vectorindex

import (
	"context"
	"os"
	"path/filepath"

	"codeintel/internal/chunker"
	"codeintel/internal/fingerprint"
	"codeintel/internal/logging"
)

// SyncReport summarizes one forest sync pass.
type SyncReport struct {
	Added    int      `json:"added"`
	Modified int      `json:"modified"`
	Deleted  int      `json:"deleted"`
	Errors   []string `json:"errors,omitempty"`
}

// SyncForest chunks every added/modified file reported by store and
// re-indexes it, deleting chunks for removed files, mirroring
// ChromaDBManager.sync_forest's three-way diff handling.
func SyncForest(ctx context.Context, idx *Index, store *fingerprint.Store, c *chunker.Chunker, repoRoot string, extensions []string, excludePatterns []string) (SyncReport, error) {
	var report SyncReport

	changes, err := store.GetChangedFiles(extensions, excludePatterns)
	if err != nil {
		return report, err
	}

	for _, rel := range changes.Deleted {
		if err := idx.DeleteForestFile(ctx, rel); err != nil {
			report.Errors = append(report.Errors, rel+": "+err.Error())
			continue
		}
		store.Forget(rel)
		report.Deleted++
	}

	index := func(rel string) (int, error) {
		abs := filepath.Join(repoRoot, rel)
		content, err := os.ReadFile(abs)
		if err != nil {
			return 0, err
		}
		chunks, err := c.ChunkFile(rel, content)
		if err != nil {
			return 0, err
		}
		return idx.UpsertForestChunks(ctx, rel, chunks)
	}

	for _, rel := range changes.Modified {
		count, err := index(rel)
		if err != nil {
			report.Errors = append(report.Errors, rel+": "+err.Error())
			continue
		}
		if err := store.Record(rel, count); err != nil {
			report.Errors = append(report.Errors, rel+": "+err.Error())
			continue
		}
		report.Modified++
	}

	for _, rel := range changes.Added {
		count, err := index(rel)
		if err != nil {
			report.Errors = append(report.Errors, rel+": "+err.Error())
			continue
		}
		if err := store.Record(rel, count); err != nil {
			report.Errors = append(report.Errors, rel+": "+err.Error())
			continue
		}
		report.Added++
	}

	if err := store.MarkSynced(); err != nil {
		return report, err
	}

	logging.Get(logging.CategoryVectorIndex).Info("forest sync complete: added=%d modified=%d deleted=%d errors=%d",
		report.Added, report.Modified, report.Deleted, len(report.Errors))
	return report, nil
}
