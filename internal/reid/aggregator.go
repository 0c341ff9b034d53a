package reid

import (
	"fmt"

	"player-reid-go/pkg/models"

	"gonum.org/v1/gonum/floats"
)

// DefaultSignatureCap сколько первых эмбеддингов идентификатора усредняется
const DefaultSignatureCap = 30

// Signatures представительные векторы идентификаторов одного потока.
// IDs хранит порядок первого появления идентификатора во входных данных.
type Signatures struct {
	Stream  string
	IDs     []int
	vectors map[int][]float64
}

// Len количество идентификаторов с сигнатурой
func (s *Signatures) Len() int {
	return len(s.IDs)
}

// Vector возвращает сигнатуру идентификатора
func (s *Signatures) Vector(id int) ([]float64, bool) {
	v, ok := s.vectors[id]
	return v, ok
}

// Dim длина векторов, 0 для пустого набора
func (s *Signatures) Dim() int {
	if len(s.IDs) == 0 {
		return 0
	}
	return len(s.vectors[s.IDs[0]])
}

// NewSignatures собирает набор из готовых векторов в заданном порядке
func NewSignatures(stream string, ids []int, vectors [][]float64) (*Signatures, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("stream %q: %d ids for %d vectors", stream, len(ids), len(vectors))
	}
	s := &Signatures{Stream: stream, vectors: make(map[int][]float64, len(ids))}
	for i, id := range ids {
		if _, dup := s.vectors[id]; dup {
			return nil, fmt.Errorf("stream %q: duplicate identity %d", stream, id)
		}
		if len(vectors[i]) == 0 || len(vectors[i]) != len(vectors[0]) {
			return nil, fmt.Errorf("stream %q, identity %d: %w", stream, id, ErrDimensionMismatch)
		}
		s.IDs = append(s.IDs, id)
		s.vectors[id] = vectors[i]
	}
	if len(s.IDs) == 0 {
		return nil, &EmptyAggregateError{Stream: stream}
	}
	return s, nil
}

// Aggregate группирует детекции по идентификатору и усредняет первые
// limit эмбеддингов каждой группы. Детекции без идентификатора или без
// эмбеддинга пропускаются. Пустой результат - ошибка ErrEmptyAggregate.
func Aggregate(stream string, detections []models.Detection, limit int) (*Signatures, error) {
	if limit <= 0 {
		limit = DefaultSignatureCap
	}

	var ids []int
	sums := make(map[int][]float64)
	counts := make(map[int]int)
	dim := -1

	for _, det := range detections {
		if det.Identity == nil || len(det.Embedding) == 0 {
			continue
		}
		id := *det.Identity
		if dim < 0 {
			dim = len(det.Embedding)
		}
		if len(det.Embedding) != dim {
			return nil, fmt.Errorf("stream %q, frame %d, identity %d: got %d values, want %d: %w",
				stream, det.Frame, id, len(det.Embedding), dim, ErrDimensionMismatch)
		}

		sum, seen := sums[id]
		if !seen {
			ids = append(ids, id)
			sum = make([]float64, dim)
			sums[id] = sum
		}
		if counts[id] >= limit {
			continue
		}
		floats.Add(sum, det.Embedding)
		counts[id]++
	}

	if len(ids) == 0 {
		return nil, &EmptyAggregateError{Stream: stream}
	}

	s := &Signatures{Stream: stream, IDs: ids, vectors: make(map[int][]float64, len(ids))}
	for _, id := range ids {
		mean := sums[id]
		n := float64(counts[id])
		for i := range mean {
			mean[i] /= n
		}
		s.vectors[id] = mean
	}
	return s, nil
}
