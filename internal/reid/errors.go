package reid

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyAggregate поток не дал ни одной сигнатуры, сопоставление невозможно
	ErrEmptyAggregate = errors.New("no identity has a valid embedding")

	// ErrDimensionMismatch эмбеддинги разной длины
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// EmptyAggregateError сообщает, какой поток не дал сигнатур
type EmptyAggregateError struct {
	Stream string
}

func (e *EmptyAggregateError) Error() string {
	return fmt.Sprintf("stream %q: %v", e.Stream, ErrEmptyAggregate)
}

func (e *EmptyAggregateError) Unwrap() error {
	return ErrEmptyAggregate
}

var (
	errEmptyEmbedding     = errors.New("extractor returned an empty embedding")
	errNonFiniteEmbedding = errors.New("extractor returned a non-finite value")
)
