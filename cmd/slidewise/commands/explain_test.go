package commands

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/slidewise/internal/domain"
	"github.com/timmy/slidewise/internal/export"
)

func TestWriteArtifact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	artifact := &domain.ExplanationArtifact{LectureName: "Week 3", PartCount: 1, Explanations: []string{"x"}, Positions: []int{0}}

	path, err := writeArtifact(dir, artifact, export.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Week 3.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back domain.ExplanationArtifact
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *artifact, back)

	path, err = writeArtifact(dir, artifact, export.FormatXLSX)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, ".xlsx", filepath.Ext(path))
}

func TestLocalHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Deck.PPTX")
	require.NoError(t, os.WriteFile(path, []byte("bytes"), 0644))

	h := localHandle(path)
	assert.Equal(t, "pptx", h.Extension())
	assert.Equal(t, "Deck", h.BaseName())
	assert.NotEmpty(t, h.JobID)

	rc, err := h.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "bytes", string(data))
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  backend: redis\n"), 0644))

	_, err := loadConfig(path)
	assert.ErrorContains(t, err, "invalid config")
}
