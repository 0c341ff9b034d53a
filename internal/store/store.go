package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"player-reid-go/pkg/models"
)

// ErrMalformed файл детекций не читается или содержит некорректные записи
var ErrMalformed = errors.New("malformed detection file")

// Load читает JSON-массив детекций и проверяет каждую запись
func Load(path string) ([]models.Detection, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}

	var detections []models.Detection
	if err := json.Unmarshal(data, &detections); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}

	if err := Validate(detections); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return detections, nil
}

// Validate проверяет инварианты записей
func Validate(detections []models.Detection) error {
	for i, d := range detections {
		if d.Frame < 0 {
			return fmt.Errorf("%w: record %d: negative frame %d", ErrMalformed, i, d.Frame)
		}
		if !d.BBox.Valid() {
			return fmt.Errorf("%w: record %d: invalid bbox %v", ErrMalformed, i, d.BBox)
		}
		if d.Confidence < 0 || d.Confidence > 1 {
			return fmt.Errorf("%w: record %d: confidence %v out of [0,1]", ErrMalformed, i, d.Confidence)
		}
	}
	return nil
}

// Save записывает детекции в JSON с отступами. Файл пишется через
// временный файл, чтобы не оставлять частичный результат.
func Save(path string, detections []models.Detection) error {
	if detections == nil {
		detections = []models.Detection{}
	}

	data, err := json.MarshalIndent(detections, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode detections: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write detections: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move detections into place: %w", err)
	}
	return nil
}

// ByFrame группирует детекции по кадрам, сохраняя исходный порядок внутри кадра
func ByFrame(detections []models.Detection) map[int][]models.Detection {
	frames := make(map[int][]models.Detection)
	for _, d := range detections {
		frames[d.Frame] = append(frames[d.Frame], d)
	}
	return frames
}

// Frames возвращает отсортированный список кадров, в которых есть детекции
func Frames(detections []models.Detection) []int {
	seen := make(map[int]struct{})
	var frames []int
	for _, d := range detections {
		if _, ok := seen[d.Frame]; ok {
			continue
		}
		seen[d.Frame] = struct{}{}
		frames = append(frames, d.Frame)
	}
	sort.Ints(frames)
	return frames
}
