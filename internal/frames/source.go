package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrNoFrames в директории нет ни одного кадра
	ErrNoFrames = errors.New("no frames found")
	// ErrFrameNotFound кадр с таким индексом отсутствует (видео закончилось)
	ErrFrameNotFound = errors.New("frame not found")
)

var frameIndexPattern = regexp.MustCompile(`(\d+)$`)

var supportedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// DirSource источник кадров из директории с заранее декодированными кадрами.
// Индекс кадра берется из последнего числа в имени файла: frame_000042.jpg -> 42.
type DirSource struct {
	dir   string
	paths map[int]string
}

// OpenDir сканирует директорию кадров
func OpenDir(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames directory %s: %w", dir, err)
	}

	s := &DirSource{dir: dir, paths: make(map[int]string)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !supportedExt[ext] {
			continue
		}
		match := frameIndexPattern.FindString(strings.TrimSuffix(name, filepath.Ext(name)))
		if match == "" {
			continue
		}
		index, err := strconv.Atoi(match)
		if err != nil {
			continue
		}
		if prev, dup := s.paths[index]; dup {
			return nil, fmt.Errorf("frames %s and %s share index %d", prev, name, index)
		}
		s.paths[index] = filepath.Join(dir, name)
	}

	if len(s.paths) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoFrames)
	}
	return s, nil
}

// Len количество кадров
func (s *DirSource) Len() int {
	return len(s.paths)
}

// Indices отсортированные индексы кадров
func (s *DirSource) Indices() []int {
	indices := make([]int, 0, len(s.paths))
	for i := range s.paths {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

// Frame читает и декодирует кадр
func (s *DirSource) Frame(ctx context.Context, index int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, ok := s.paths[index]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrFrameNotFound, index)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %s: %w", path, err)
	}
	return img, nil
}
