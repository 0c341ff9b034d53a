package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"player-reid-go/internal/frames"
	"player-reid-go/internal/model"
	"player-reid-go/internal/reid"
	"player-reid-go/internal/store"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"success", nil, Outcome{model.RunStatusCompleted, http.StatusOK, ExitOK}},
		{"empty aggregate", fmt.Errorf("resolve: %w", &reid.EmptyAggregateError{Stream: "tacticam"}),
			Outcome{model.RunStatusFailedNoSignal, http.StatusUnprocessableEntity, ExitNoSignal}},
		{"malformed store", fmt.Errorf("load: %w", store.ErrMalformed),
			Outcome{model.RunStatusFailedInput, http.StatusBadRequest, ExitMalformed}},
		{"dimension mismatch", reid.ErrDimensionMismatch,
			Outcome{model.RunStatusFailedInput, http.StatusBadRequest, ExitMalformed}},
		{"no frames", fmt.Errorf("open: %w", frames.ErrNoFrames),
			Outcome{model.RunStatusFailedInput, http.StatusBadRequest, ExitMalformed}},
		{"malformed input", ErrMalformedInput,
			Outcome{model.RunStatusFailedInput, http.StatusBadRequest, ExitMalformed}},
		{"canceled", context.Canceled, Outcome{model.RunStatusFailed, http.StatusInternalServerError, ExitFailure}},
		{"other", errors.New("disk full"), Outcome{model.RunStatusFailed, http.StatusInternalServerError, ExitFailure}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
