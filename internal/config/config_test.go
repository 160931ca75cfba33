package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	require.NoError(t, err)
	assert.Equal(t, "full", cfg.CodeIntel.GateLevel)
	assert.Equal(t, 0.7, cfg.CodeIntel.MapShortCircuitThreshold)
}

func TestSaveAndLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	cfg := DefaultConfig()
	cfg.CodeIntel.GateLevel = "auto"
	cfg.CodeIntel.QualityReviewMaxRevert = 5

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "auto", loaded.CodeIntel.GateLevel)
	assert.Equal(t, 5, loaded.CodeIntel.QualityReviewMaxRevert)
}

func TestValidateRejectsUnknownGateLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CodeIntel.GateLevel = "sometimes"
	assert.Error(t, cfg.Validate(), "expected validation error for unrecognized gate_level")
}

func TestGetBranchStaleAfterParsesDuration(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 168.0, cfg.GetBranchStaleAfter().Hours())
}
