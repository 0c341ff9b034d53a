package store

import (
	"os"
	"path/filepath"
	"testing"

	"player-reid-go/pkg/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "tacticam_tracked.json")

	input := []models.Detection{
		{Frame: 0, BBox: models.BBox{1, 2, 30, 40}, Confidence: 0.9},
		models.Detection{Frame: 1, BBox: models.BBox{5, 5, 25, 60}, Confidence: 0.4, Embedding: []float64{0.5, 1.5}}.WithIdentity(3),
	}
	require.NoError(t, Save(path, input))

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(input, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestLoadOriginalFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broadcast_tracked.json")
	raw := `[
  {"frame": 3, "bbox": [10.5, 20.0, 50.25, 120.0], "confidence": 0.87, "id": 0, "embedding": [0.1, 0.2]},
  {"frame": 4, "bbox": [11.0, 21.0, 51.0, 121.0], "confidence": 0.55}
]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Identity)
	assert.Equal(t, 0, *got[0].Identity)
	assert.Equal(t, []float64{0.1, 0.2}, got[0].Embedding)
	assert.Nil(t, got[1].Identity)
	assert.Nil(t, got[1].Embedding)
}

func TestLoadMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{`},
		{"object instead of array", `{"frame": 1}`},
		{"inverted bbox", `[{"frame": 0, "bbox": [50, 0, 10, 10], "confidence": 0.5}]`},
		{"confidence above one", `[{"frame": 0, "bbox": [0, 0, 10, 10], "confidence": 1.5}]`},
		{"negative frame", `[{"frame": -1, "bbox": [0, 0, 10, 10], "confidence": 0.5}]`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "d.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.raw), 0644))
			_, err := Load(path)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSaveEmptyWritesArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, Save(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestByFrameAndFrames(t *testing.T) {
	t.Parallel()

	input := []models.Detection{
		{Frame: 2, Confidence: 0.1},
		{Frame: 0, Confidence: 0.2},
		{Frame: 2, Confidence: 0.3},
	}

	grouped := ByFrame(input)
	require.Len(t, grouped[2], 2)
	assert.Equal(t, 0.1, grouped[2][0].Confidence)
	assert.Equal(t, 0.3, grouped[2][1].Confidence)
	assert.Equal(t, []int{0, 2}, Frames(input))
}
