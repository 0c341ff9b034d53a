package reid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Match лучшее соответствие идентификатора потока B идентификатору потока A
type Match struct {
	BIdentity  int
	AIdentity  int
	Similarity float64
}

// Mapping отображение идентификаторов потока B в идентификаторы потока A.
// Несколько ключей могут указывать на одно значение.
type Mapping map[int]int

// Resolution результат сопоставления двух потоков
type Resolution struct {
	AIDs       []int
	BIDs       []int
	Similarity *mat.Dense // |B| x |A|, строки в порядке BIDs
	Matches    []Match    // в порядке BIDs
}

// Mapping строит отображение из списка соответствий
func (r *Resolution) Mapping() Mapping {
	m := make(Mapping, len(r.Matches))
	for _, match := range r.Matches {
		m[match.BIdentity] = match.AIdentity
	}
	return m
}

// Resolve сопоставляет каждый идентификатор B с идентификатором A, чей
// вектор имеет наибольшее косинусное сходство. При равенстве выбирается
// A с меньшим индексом в порядке a.IDs. Назначение жадное и не взаимное.
func Resolve(a, b *Signatures) (*Resolution, error) {
	if a == nil || a.Len() == 0 {
		return nil, &EmptyAggregateError{Stream: streamName(a, "A")}
	}
	if b == nil || b.Len() == 0 {
		return nil, &EmptyAggregateError{Stream: streamName(b, "B")}
	}
	if a.Dim() != b.Dim() {
		return nil, fmt.Errorf("streams %q (%d) and %q (%d): %w",
			a.Stream, a.Dim(), b.Stream, b.Dim(), ErrDimensionMismatch)
	}

	am := normalizedRows(a)
	bm := normalizedRows(b)

	var sim mat.Dense
	sim.Mul(bm, am.T())

	rows, cols := sim.Dims()
	res := &Resolution{
		AIDs:       append([]int(nil), a.IDs...),
		BIDs:       append([]int(nil), b.IDs...),
		Similarity: &sim,
		Matches:    make([]Match, 0, rows),
	}

	for i := 0; i < rows; i++ {
		best := 0
		bestSim := clamp(sim.At(i, 0))
		sim.Set(i, 0, bestSim)
		for j := 1; j < cols; j++ {
			v := clamp(sim.At(i, j))
			sim.Set(i, j, v)
			if v > bestSim {
				best, bestSim = j, v
			}
		}
		res.Matches = append(res.Matches, Match{
			BIdentity:  b.IDs[i],
			AIdentity:  a.IDs[best],
			Similarity: bestSim,
		})
	}

	return res, nil
}

// CosineSimilarity косинусное сходство; для нулевого вектора возвращает 0
func CosineSimilarity(x, y []float64) float64 {
	nx, ny := floats.Norm(x, 2), floats.Norm(y, 2)
	if nx == 0 || ny == 0 {
		return 0
	}
	return clamp(floats.Dot(x, y) / (nx * ny))
}

// normalizedRows матрица сигнатур с единичными строками; нулевые строки остаются нулевыми
func normalizedRows(s *Signatures) *mat.Dense {
	dim := s.Dim()
	data := make([]float64, 0, s.Len()*dim)
	for _, id := range s.IDs {
		row := append([]float64(nil), s.vectors[id]...)
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
		data = append(data, row...)
	}
	return mat.NewDense(s.Len(), dim, data)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

func streamName(s *Signatures, fallback string) string {
	if s == nil || s.Stream == "" {
		return fallback
	}
	return s.Stream
}
