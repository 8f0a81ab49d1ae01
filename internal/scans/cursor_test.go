package scans

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issue-scout/internal/structure"
)

func testFiles(n int) []structure.CategorizedFile {
	out := make([]structure.CategorizedFile, n)
	for i := range out {
		out[i] = structure.CategorizedFile{
			Path:     "src/f" + string(rune('a'+i)) + ".ts",
			URL:      "blob://" + string(rune('a'+i)),
			Priority: structure.PriorityPrimary,
			Category: structure.CategorySource,
		}
	}
	return out
}

func TestDecodeCursorEmpty(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage("null")} {
		c, err := DecodeCursor(raw)
		require.NoError(t, err)
		assert.Nil(t, c)
	}
}

func TestCursorEncodeDecode(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c, err := NewCursor(now).EnterFiles(testFiles(4), now)
	require.NoError(t, err)
	c = c.Checkpoint(2, "src/fb.ts", now)

	raw, err := c.Encode()
	require.NoError(t, err)
	got, err := DecodeCursor(raw)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, PhaseFiles, got.Phase)
	assert.Equal(t, 2, got.FilesProcessed)
	assert.Equal(t, 4, got.TotalFiles)
	assert.Equal(t, "src/fb.ts", got.LastProcessedFile)
	assert.Len(t, got.Files.FilesToScan, 4)
}

func TestDecodeCursorRejectsCorruptShapes(t *testing.T) {
	cases := map[string]string{
		"not json":            `{"version":`,
		"unknown version":     `{"version":2,"phase":"tree"}`,
		"unknown phase":       `{"version":1,"phase":"drafting"}`,
		"files no payload":    `{"version":1,"phase":"files","filesProcessed":0,"totalFiles":0}`,
		"position past total": `{"version":1,"phase":"files","filesProcessed":3,"totalFiles":1,"files":{"filesToScan":[{"path":"a.ts"}]}}`,
		"total mismatch":      `{"version":1,"phase":"files","filesProcessed":0,"totalFiles":5,"files":{"filesToScan":[{"path":"a.ts"}]}}`,
		"stale payload":       `{"version":1,"phase":"signals","files":{"filesToScan":[]}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCursor(json.RawMessage(raw))
			assert.True(t, errors.Is(err, ErrCursorCorrupt), "got %v", err)
		})
	}
}

func TestCursorAdvanceIsForwardOnly(t *testing.T) {
	now := time.Now().UTC()
	tree := NewCursor(now)

	_, err := tree.Advance(PhaseSignals, now)
	assert.Error(t, err, "skipping files must fail")

	files, err := tree.EnterFiles(testFiles(2), now)
	require.NoError(t, err)
	_, err = files.Advance(PhaseTree, now)
	assert.Error(t, err, "moving backwards must fail")

	sig, err := files.Advance(PhaseSignals, now)
	require.NoError(t, err)
	assert.Nil(t, sig.Files)
	require.NoError(t, sig.Validate())

	llm, err := sig.Advance(PhaseLLM, now)
	require.NoError(t, err)
	_, err = llm.Advance(PhaseLLM, now)
	assert.Error(t, err)
}
