package service

import (
	"errors"
	"net/http"

	"player-reid-go/internal/config"
	"player-reid-go/internal/frames"
	"player-reid-go/internal/model"
	"player-reid-go/internal/reid"
	"player-reid-go/internal/store"
)

// ErrMalformedInput входные данные конвейера непригодны для обработки
var ErrMalformedInput = errors.New("malformed input")

// Коды завершения CLI
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitMalformed = 2
	ExitNoSignal  = 3
)

// Outcome итог прогона для статуса в БД, HTTP ответа и кода завершения
type Outcome struct {
	Status     string
	HTTPStatus int
	ExitCode   int
}

// Classify сопоставляет ошибку конвейера с его итогом
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Status: model.RunStatusCompleted, HTTPStatus: http.StatusOK, ExitCode: ExitOK}
	case errors.Is(err, reid.ErrEmptyAggregate):
		return Outcome{Status: model.RunStatusFailedNoSignal, HTTPStatus: http.StatusUnprocessableEntity, ExitCode: ExitNoSignal}
	case IsMalformed(err):
		return Outcome{Status: model.RunStatusFailedInput, HTTPStatus: http.StatusBadRequest, ExitCode: ExitMalformed}
	default:
		return Outcome{Status: model.RunStatusFailed, HTTPStatus: http.StatusInternalServerError, ExitCode: ExitFailure}
	}
}

// IsMalformed сообщает, вызвана ли ошибка некорректными входными данными
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedInput) ||
		errors.Is(err, store.ErrMalformed) ||
		errors.Is(err, reid.ErrDimensionMismatch) ||
		errors.Is(err, frames.ErrNoFrames) ||
		errors.Is(err, config.ErrInvalidConfig)
}
