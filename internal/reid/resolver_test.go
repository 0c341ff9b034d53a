package reid

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"player-reid-go/pkg/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSignatures(t *testing.T, stream string, ids []int, vectors [][]float64) *Signatures {
	t.Helper()
	s, err := NewSignatures(stream, ids, vectors)
	require.NoError(t, err)
	return s
}

func TestResolveTwoByOne(t *testing.T) {
	t.Parallel()

	a := mustSignatures(t, "broadcast", []int{0, 1}, [][]float64{{1, 0, 0}, {0, 1, 0}})
	b := mustSignatures(t, "tacticam", []int{0}, [][]float64{{0.9, 0.1, 0}})

	res, err := Resolve(a, b)
	require.NoError(t, err)

	assert.Equal(t, Mapping{0: 0}, res.Mapping())
	assert.InDelta(t, 0.9939, res.Similarity.At(0, 0), 1e-3)
	assert.InDelta(t, 0.1104, res.Similarity.At(0, 1), 1e-3)
	assert.InDelta(t, 0.9939, res.Matches[0].Similarity, 1e-3)

	rows, cols := res.Similarity.Dims()
	assert.Equal(t, 1, rows)
	assert.Equal(t, 2, cols)
}

func TestResolveTieGoesToLowestIndex(t *testing.T) {
	t.Parallel()

	// Оба вектора B равноудалены от обоих векторов A
	a := mustSignatures(t, "broadcast", []int{10, 4}, [][]float64{{1, 0}, {0, 1}})
	b := mustSignatures(t, "tacticam", []int{0, 1}, [][]float64{{1, 1}, {2, 2}})

	res, err := Resolve(a, b)
	require.NoError(t, err)

	assert.Equal(t, res.Similarity.At(0, 0), res.Similarity.At(0, 1))
	// Индекс 0 в порядке перечисления A - это идентификатор 10
	assert.Equal(t, Mapping{0: 10, 1: 10}, res.Mapping())
}

func TestResolveManyToOne(t *testing.T) {
	t.Parallel()

	a := mustSignatures(t, "broadcast", []int{0, 1}, [][]float64{{1, 0}, {0, 1}})
	b := mustSignatures(t, "tacticam", []int{0, 1, 2}, [][]float64{{1, 0.1}, {1, 0.2}, {0.1, 1}})

	res, err := Resolve(a, b)
	require.NoError(t, err)

	want := []Match{
		{BIdentity: 0, AIdentity: 0},
		{BIdentity: 1, AIdentity: 0},
		{BIdentity: 2, AIdentity: 1},
	}
	ignoreSimilarity := cmp.Comparer(func(x, y Match) bool {
		return x.AIdentity == y.AIdentity && x.BIdentity == y.BIdentity
	})
	if diff := cmp.Diff(want, res.Matches, ignoreSimilarity); diff != "" {
		t.Errorf("Resolve() matches mismatch (-want +got):\n%s", diff)
	}
}

func TestResolvePicksStrictMaximum(t *testing.T) {
	t.Parallel()

	aVecs := [][]float64{{1, 2, 3}, {-1, 0.5, 2}, {3, -2, 0.1}, {0.2, 0.2, 0.9}}
	bVecs := [][]float64{{0.1, 0.3, 1}, {2, -1, 0}, {-0.5, 0.4, 1}}
	a := mustSignatures(t, "broadcast", []int{0, 1, 2, 3}, aVecs)
	b := mustSignatures(t, "tacticam", []int{0, 1, 2}, bVecs)

	res, err := Resolve(a, b)
	require.NoError(t, err)

	for i, bv := range bVecs {
		best, bestSim := 0, math.Inf(-1)
		for j, av := range aVecs {
			if s := CosineSimilarity(bv, av); s > bestSim+1e-12 {
				best, bestSim = j, s
			}
		}
		assert.Equal(t, best, res.Matches[i].AIdentity, "row %d", i)
		assert.InDelta(t, bestSim, res.Matches[i].Similarity, 1e-9)
	}
}

func TestResolveZeroVector(t *testing.T) {
	t.Parallel()

	a := mustSignatures(t, "broadcast", []int{0, 1}, [][]float64{{1, 0}, {0, 1}})
	b := mustSignatures(t, "tacticam", []int{0}, [][]float64{{0, 0}})

	res, err := Resolve(a, b)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Similarity.At(0, 0))
	assert.Equal(t, 0.0, res.Similarity.At(0, 1))
	assert.Equal(t, Mapping{0: 0}, res.Mapping())
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	a := mustSignatures(t, "broadcast", []int{0}, [][]float64{{1, 0}})

	_, err := Resolve(a, nil)
	assert.ErrorIs(t, err, ErrEmptyAggregate)

	_, err = Resolve(&Signatures{Stream: "broadcast"}, a)
	var emptyErr *EmptyAggregateError
	require.ErrorAs(t, err, &emptyErr)
	assert.Equal(t, "broadcast", emptyErr.Stream)

	b := mustSignatures(t, "tacticam", []int{0}, [][]float64{{1, 0, 0}})
	_, err = Resolve(a, b)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-3, 0}), 1e-12)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 0}))
}

// constFrames отдает один и тот же кадр для любого индекса из набора
type constFrames map[int]bool

func (f constFrames) Frame(_ context.Context, index int) (image.Image, error) {
	if !f[index] {
		return nil, errors.New("no frame")
	}
	return image.NewGray(image.Rect(0, 0, 64, 64)), nil
}

func TestPipelineEndToEnd(t *testing.T) {
	t.Parallel()

	// Эмбеддинг определяется шириной вырезки
	byWidth := extractorFunc(func(_ context.Context, crop image.Image) ([]float64, error) {
		switch crop.Bounds().Dx() {
		case 20:
			return []float64{1, 0, 0}, nil
		case 30:
			return []float64{0, 1, 0}, nil
		case 40:
			return []float64{0.9, 0.1, 0}, nil
		}
		return nil, errors.New("unknown crop")
	})
	tagger := NewTagger(TaggerConfig{ConfidenceThreshold: DefaultConfidenceThreshold}, byWidth, quietLogger())
	frames := constFrames{0: true}

	broadcast, _, err := tagger.Tag(context.Background(), []models.Detection{
		det(0, 0.8, models.BBox{0, 0, 20, 20}),
		det(0, 0.8, models.BBox{0, 0, 30, 20}),
	}, frames)
	require.NoError(t, err)

	tacticam, _, err := tagger.Tag(context.Background(), []models.Detection{
		det(0, 0.8, models.BBox{0, 0, 40, 20}),
	}, frames)
	require.NoError(t, err)

	a, err := Aggregate("broadcast", broadcast, DefaultSignatureCap)
	require.NoError(t, err)
	b, err := Aggregate("tacticam", tacticam, DefaultSignatureCap)
	require.NoError(t, err)

	res, err := Resolve(a, b)
	require.NoError(t, err)
	assert.Equal(t, Mapping{0: 0}, res.Mapping())

	resolved := Apply(tacticam, res.Mapping())
	require.Len(t, resolved, 1)
	assert.Equal(t, 0, *resolved[0].Identity)
}

func TestPipelineNoConfidentDetections(t *testing.T) {
	t.Parallel()

	tagger := NewTagger(TaggerConfig{ConfidenceThreshold: DefaultConfidenceThreshold}, sizeExtractor, quietLogger())
	tacticam, stats, err := tagger.Tag(context.Background(), []models.Detection{
		det(0, 0.1, models.BBox{0, 0, 20, 20}),
		det(0, 0.29, models.BBox{0, 0, 20, 20}),
	}, constFrames{0: true})
	require.NoError(t, err)
	assert.Empty(t, tacticam)
	assert.Equal(t, 2, stats.Dropped[DropLowConfidence])

	_, err = Aggregate("tacticam", tacticam, DefaultSignatureCap)
	assert.ErrorIs(t, err, ErrEmptyAggregate)
}
