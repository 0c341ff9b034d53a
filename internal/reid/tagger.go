package reid

import (
	"context"
	"image"
	"math"
	"sort"
	"time"

	"player-reid-go/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConfidenceThreshold детекции ниже порога отбрасываются
	DefaultConfidenceThreshold = 0.3
	// DefaultMinCropSize минимальная ширина и высота вырезки в пикселях
	DefaultMinCropSize = 10
)

// FrameSource отдает декодированные кадры потока по индексу
type FrameSource interface {
	Frame(ctx context.Context, index int) (image.Image, error)
}

// EmbeddingExtractor вычисляет вектор внешнего вида для вырезки кадра
type EmbeddingExtractor interface {
	Extract(ctx context.Context, crop image.Image) ([]float64, error)
}

// DropReason причина, по которой детекция не попала в результат
type DropReason string

const (
	DropLowConfidence DropReason = "low_confidence"
	DropMissingFrame  DropReason = "missing_frame"
	DropSmallCrop     DropReason = "small_crop"
	DropExtractFailed DropReason = "extract_failed"
)

// TaggerConfig параметры трекера по внешнему виду
type TaggerConfig struct {
	ConfidenceThreshold float64
	MinCropSize         int
	Workers             int           // 0 или 1 - последовательная обработка
	ExtractTimeout      time.Duration // 0 - без ограничения
}

// TagStats счетчики одного прогона трекера
type TagStats struct {
	Total   int                `json:"total"`
	Kept    int                `json:"kept"`
	Dropped map[DropReason]int `json:"dropped"`
}

// Tagger прикрепляет эмбеддинги к детекциям и выдает идентификаторы
type Tagger struct {
	cfg       TaggerConfig
	extractor EmbeddingExtractor
	logger    *logrus.Logger
}

// NewTagger создает трекер
func NewTagger(cfg TaggerConfig, extractor EmbeddingExtractor, logger *logrus.Logger) *Tagger {
	if cfg.MinCropSize <= 0 {
		cfg.MinCropSize = DefaultMinCropSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Tagger{
		cfg:       cfg,
		extractor: extractor,
		logger:    logger,
	}
}

// outcome результат обработки одной детекции
type outcome struct {
	embedding []float64
	reason    DropReason
}

// Tag обрабатывает детекции одного потока. Каждая сохраненная детекция
// получает эмбеддинг и новый идентификатор; счетчик начинается с 0 и живет
// только в рамках одного вызова. Ошибки отдельных детекций приводят лишь
// к их отбрасыванию; ошибка возвращается только при отмене ctx.
func (t *Tagger) Tag(ctx context.Context, detections []models.Detection, frames FrameSource) ([]models.Detection, TagStats, error) {
	stats := TagStats{Total: len(detections), Dropped: make(map[DropReason]int)}

	// Порядок кадров, внутри кадра - порядок детектора
	order := make([]int, len(detections))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return detections[order[i]].Frame < detections[order[j]].Frame
	})

	results := make([]outcome, len(detections))
	groups := groupByFrame(order, detections)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Workers)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t.tagFrame(gctx, group, detections, frames, results)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	// Идентификаторы выдаются строго в порядке входа, а не завершения
	output := make([]models.Detection, 0, len(detections))
	nextID := 0
	for _, idx := range order {
		res := results[idx]
		if res.reason != "" {
			stats.Dropped[res.reason]++
			continue
		}
		det := detections[idx].WithIdentity(nextID)
		det.Embedding = res.embedding
		output = append(output, det)
		nextID++
	}
	stats.Kept = len(output)

	return output, stats, nil
}

// frameGroup индексы детекций одного кадра
type frameGroup struct {
	frame   int
	indices []int
}

func groupByFrame(order []int, detections []models.Detection) []frameGroup {
	var groups []frameGroup
	for _, idx := range order {
		frame := detections[idx].Frame
		if n := len(groups); n > 0 && groups[n-1].frame == frame {
			groups[n-1].indices = append(groups[n-1].indices, idx)
			continue
		}
		groups = append(groups, frameGroup{frame: frame, indices: []int{idx}})
	}
	return groups
}

// tagFrame обрабатывает все детекции одного кадра, кадр читается один раз
func (t *Tagger) tagFrame(ctx context.Context, group frameGroup, detections []models.Detection, frames FrameSource, results []outcome) {
	var img image.Image
	loaded := false

	for _, idx := range group.indices {
		det := detections[idx]
		if det.Confidence < t.cfg.ConfidenceThreshold {
			results[idx] = outcome{reason: DropLowConfidence}
			continue
		}

		if !loaded {
			loaded = true
			var err error
			img, err = frames.Frame(ctx, group.frame)
			if err != nil {
				t.logger.Debugf("Кадр %d недоступен: %v", group.frame, err)
			}
		}
		if img == nil {
			results[idx] = outcome{reason: DropMissingFrame}
			continue
		}

		crop, ok := Crop(img, det.BBox, t.cfg.MinCropSize)
		if !ok {
			t.logger.Debugf("Пропускаем слишком маленькую вырезку: кадр %d, bbox %v (%.0fx%.0f)", det.Frame, det.BBox, det.BBox.Width(), det.BBox.Height())
			results[idx] = outcome{reason: DropSmallCrop}
			continue
		}

		embedding, err := t.extract(ctx, crop)
		if err != nil {
			t.logger.Debugf("Нет эмбеддинга для кадра %d, bbox %v: %v", det.Frame, det.BBox, err)
			results[idx] = outcome{reason: DropExtractFailed}
			continue
		}
		results[idx] = outcome{embedding: embedding}
	}
}

// extract запрашивает эмбеддинг с учетом таймаута и проверяет результат
func (t *Tagger) extract(ctx context.Context, crop image.Image) ([]float64, error) {
	if t.cfg.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ExtractTimeout)
		defer cancel()
	}

	embedding, err := t.extractor.Extract(ctx, crop)
	if err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, errEmptyEmbedding
	}
	for _, v := range embedding {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errNonFiniteEmbedding
		}
	}
	return embedding, nil
}

// CropRect переводит bbox в прямоугольник кадра, обрезанный по его границам.
// Координаты усекаются к нулю, как при целочисленном приведении.
func CropRect(bounds image.Rectangle, box models.BBox) image.Rectangle {
	r := image.Rectangle{
		Min: image.Pt(int(box[0]), int(box[1])),
		Max: image.Pt(int(box[2]), int(box[3])),
	}
	return r.Add(bounds.Min).Intersect(bounds)
}

// Crop вырезает bbox из кадра. Возвращает false, если ширина или высота
// вырезки меньше minSize.
func Crop(img image.Image, box models.BBox, minSize int) (image.Image, bool) {
	r := CropRect(img.Bounds(), box)
	if r.Dx() < minSize || r.Dy() < minSize {
		return nil, false
	}

	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(r), true
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst, true
}
