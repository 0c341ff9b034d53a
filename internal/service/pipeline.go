package service

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"player-reid-go/internal/config"
	"player-reid-go/internal/frames"
	"player-reid-go/internal/reid"
	"player-reid-go/internal/render"
	"player-reid-go/internal/report"
	"player-reid-go/internal/store"
	"player-reid-go/pkg/models"

	"github.com/sirupsen/logrus"
)

// Имена потоков и файлов результатов
const (
	StreamBroadcast = "broadcast" // Поток A, задает целевые идентификаторы
	StreamTacticam  = "tacticam"  // Поток B, идентификаторы которого переназначаются

	ResolvedFile = "tacticam_reid.json"
	HeatMapFile  = "similarity.png"
)

// Detector находит объекты на кадре
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]models.RawDetection, error)
}

// FrameStream источник кадров с известным набором индексов
type FrameStream interface {
	reid.FrameSource
	Indices() []int
}

// Publisher публикует итоговые детекции во внешнюю систему
type Publisher interface {
	PublishDetections(ctx context.Context, runID, stream string, detections []models.Detection) (int, error)
}

// PipelineOptions параметры этапов конвейера
type PipelineOptions struct {
	ClassID      int
	SignatureCap int
	Render       bool
	HeatMap      bool
}

// OptionsFromConfig извлекает параметры конвейера из конфигурации
func OptionsFromConfig(cfg *config.Config) PipelineOptions {
	return PipelineOptions{
		ClassID:      cfg.Detector.ClassID,
		SignatureCap: cfg.Aggregator.SignatureCap,
		Render:       cfg.Render.Enabled,
		HeatMap:      cfg.Report.HeatMap,
	}
}

// PipelineInput входные данные одного прогона
type PipelineInput struct {
	RunID           string
	BroadcastFrames string
	TacticamFrames  string
	OutputDir       string
	FrameLimit      int // 0 - все кадры, иначе кадры 0..FrameLimit включительно
}

// StreamResult итоги обработки одного потока
type StreamResult struct {
	Detections           int                     `json:"detections"`
	FramesWithDetections int                     `json:"frames_with_detections"`
	Tagged               int                     `json:"tagged"`
	Dropped              map[reid.DropReason]int `json:"dropped,omitempty"`
	Signatures           int                     `json:"signatures"`
	DetectionsPath       string                  `json:"detections_path,omitempty"`
	TrackedPath          string                  `json:"tracked_path,omitempty"`
	RenderedFrames       int                     `json:"rendered_frames,omitempty"`
}

// ResolveResult итог сопоставления двух размеченных потоков
type ResolveResult struct {
	Broadcast  *reid.Signatures
	Tacticam   *reid.Signatures
	Resolution *reid.Resolution
	Detections []models.Detection // детекции потока B с итоговыми идентификаторами
	Path       string
}

// DistinctTargets количество различных идентификаторов A, выбранных сопоставлением
func (r *ResolveResult) DistinctTargets() int {
	targets := make(map[int]struct{})
	for _, m := range r.Resolution.Matches {
		targets[m.AIdentity] = struct{}{}
	}
	return len(targets)
}

// PipelineResult итог прогона конвейера. При ошибке заполнен частично.
type PipelineResult struct {
	RunID           string        `json:"run_id"`
	Broadcast       StreamResult  `json:"broadcast"`
	Tacticam        StreamResult  `json:"tacticam"`
	Matches         []reid.Match  `json:"matches"`
	DistinctTargets int           `json:"distinct_targets"`
	ResolvedPath    string        `json:"resolved_path,omitempty"`
	HeatMapPath     string        `json:"heatmap_path,omitempty"`
	Published       int           `json:"published"`
	PublishError    string        `json:"publish_error,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// PipelineService выполняет этапы детекции, трекинга и сопоставления
type PipelineService struct {
	opts      PipelineOptions
	detector  Detector
	tagger    *reid.Tagger
	annotator *render.Annotator
	publisher Publisher
	logger    *logrus.Logger
}

// NewPipelineService создает сервис конвейера. publisher может быть nil.
func NewPipelineService(opts PipelineOptions, detector Detector, tagger *reid.Tagger, publisher Publisher, logger *logrus.Logger) *PipelineService {
	if opts.SignatureCap <= 0 {
		opts.SignatureCap = reid.DefaultSignatureCap
	}
	return &PipelineService{
		opts:      opts,
		detector:  detector,
		tagger:    tagger,
		annotator: render.NewAnnotator(logger),
		publisher: publisher,
		logger:    logger,
	}
}

// RunAll выполняет полный прогон над двумя директориями кадров
func (s *PipelineService) RunAll(ctx context.Context, in PipelineInput) (*PipelineResult, error) {
	start := time.Now()
	result := &PipelineResult{RunID: in.RunID}
	defer func() { result.Duration = time.Since(start) }()

	s.logger.Infof("Запуск конвейера %s: broadcast=%s, tacticam=%s, выход=%s",
		in.RunID, in.BroadcastFrames, in.TacticamFrames, in.OutputDir)

	broadcastSrc, err := openStream(StreamBroadcast, in.BroadcastFrames)
	if err != nil {
		return result, err
	}
	tacticamSrc, err := openStream(StreamTacticam, in.TacticamFrames)
	if err != nil {
		return result, err
	}

	broadcastTracked, err := s.processStream(ctx, StreamBroadcast, broadcastSrc, in, &result.Broadcast)
	if err != nil {
		return result, err
	}
	if _, err := s.processStream(ctx, StreamTacticam, tacticamSrc, in, &result.Tacticam); err != nil {
		return result, err
	}

	resolved, err := s.Resolve(ctx, in.OutputDir)
	if err != nil {
		return result, err
	}
	result.Broadcast.Signatures = resolved.Broadcast.Len()
	result.Tacticam.Signatures = resolved.Tacticam.Len()
	result.Matches = resolved.Resolution.Matches
	result.DistinctTargets = resolved.DistinctTargets()
	result.ResolvedPath = resolved.Path

	if s.opts.HeatMap {
		path := filepath.Join(in.OutputDir, HeatMapFile)
		if err := report.WriteHeatMap(path, resolved.Resolution); err != nil {
			s.logger.Warnf("Не удалось построить тепловую карту: %v", err)
		} else {
			result.HeatMapPath = path
		}
	}

	if s.opts.Render {
		result.Broadcast.RenderedFrames = s.render(ctx, StreamBroadcast, broadcastSrc, in, broadcastTracked)
		result.Tacticam.RenderedFrames = s.render(ctx, StreamTacticam, tacticamSrc, in, resolved.Detections)
	}

	if s.publisher != nil {
		published, err := s.publisher.PublishDetections(ctx, in.RunID, StreamTacticam, resolved.Detections)
		result.Published = published
		if err != nil {
			s.logger.Errorf("Ошибка публикации детекций прогона %s: %v", in.RunID, err)
			result.PublishError = err.Error()
		}
	}

	s.logger.Infof("Конвейер %s завершен за %v: %d идентификаторов B сопоставлены %d идентификаторам A",
		in.RunID, time.Since(start), len(result.Matches), result.DistinctTargets)
	return result, nil
}

// processStream выполняет детекцию и трекинг одного потока
func (s *PipelineService) processStream(ctx context.Context, stream string, src FrameStream, in PipelineInput, out *StreamResult) ([]models.Detection, error) {
	detections, err := s.DetectStream(ctx, stream, src, in.OutputDir, in.FrameLimit)
	if err != nil {
		return nil, err
	}
	out.Detections = len(detections)
	out.FramesWithDetections = len(store.Frames(detections))
	out.DetectionsPath = detectionsPath(in.OutputDir, stream)

	tracked, stats, err := s.TrackStream(ctx, stream, src, in.OutputDir)
	if err != nil {
		return nil, err
	}
	out.Tagged = stats.Kept
	out.Dropped = stats.Dropped
	out.TrackedPath = trackedPath(in.OutputDir, stream)
	return tracked, nil
}

// DetectStream прогоняет кадры потока через детектор, оставляет только
// класс игрока и сохраняет <stream>_detections.json
func (s *PipelineService) DetectStream(ctx context.Context, stream string, src FrameStream, outDir string, frameLimit int) ([]models.Detection, error) {
	s.logger.Infof("Детекция потока %s", stream)

	detections := []models.Detection{}
	processed := 0
	for _, index := range limitIndices(src.Indices(), frameLimit) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := src.Frame(ctx, index)
		if err != nil {
			return nil, fmt.Errorf("%w: %s frame %d: %w", ErrMalformedInput, stream, index, err)
		}

		raw, err := s.detector.Detect(ctx, img)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: detector failed on %s frame %d: %w", ErrMalformedInput, stream, index, err)
		}

		for _, r := range raw {
			if r.Class != s.opts.ClassID {
				continue
			}
			detections = append(detections, models.Detection{
				Frame:      index,
				BBox:       r.BBox,
				Confidence: r.Confidence,
			})
		}
		processed++
	}

	if err := store.Save(detectionsPath(outDir, stream), detections); err != nil {
		return nil, err
	}
	s.logger.Infof("Поток %s: обработано %d кадров, найдено %d игроков", stream, processed, len(detections))
	return detections, nil
}

// TrackStream прикрепляет эмбеддинги и идентификаторы к детекциям потока
// и сохраняет <stream>_tracked.json
func (s *PipelineService) TrackStream(ctx context.Context, stream string, src reid.FrameSource, outDir string) ([]models.Detection, reid.TagStats, error) {
	detections, err := store.Load(detectionsPath(outDir, stream))
	if err != nil {
		return nil, reid.TagStats{}, err
	}

	tracked, stats, err := s.tagger.Tag(ctx, detections, src)
	if err != nil {
		return nil, stats, err
	}

	if err := store.Save(trackedPath(outDir, stream), tracked); err != nil {
		return nil, stats, err
	}
	s.logger.Infof("Поток %s: размечено %d из %d детекций, отброшено %v", stream, stats.Kept, stats.Total, stats.Dropped)
	return tracked, stats, nil
}

// Resolve сопоставляет размеченные потоки из outDir и сохраняет
// детекции потока B с итоговыми идентификаторами в tacticam_reid.json
func (s *PipelineService) Resolve(ctx context.Context, outDir string) (*ResolveResult, error) {
	broadcast, err := store.Load(trackedPath(outDir, StreamBroadcast))
	if err != nil {
		return nil, err
	}
	tacticam, err := store.Load(trackedPath(outDir, StreamTacticam))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved, err := s.ResolveDetections(broadcast, tacticam, 0)
	if err != nil {
		return nil, err
	}

	resolved.Path = filepath.Join(outDir, ResolvedFile)
	if err := store.Save(resolved.Path, resolved.Detections); err != nil {
		return nil, err
	}
	return resolved, nil
}

// ResolveDetections строит сигнатуры обоих потоков, сопоставляет их и
// применяет отображение к детекциям потока B. signatureCap <= 0 означает
// значение из настроек сервиса.
func (s *PipelineService) ResolveDetections(broadcast, tacticam []models.Detection, signatureCap int) (*ResolveResult, error) {
	if err := store.Validate(broadcast); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedInput, StreamBroadcast, err)
	}
	if err := store.Validate(tacticam); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedInput, StreamTacticam, err)
	}
	if signatureCap <= 0 {
		signatureCap = s.opts.SignatureCap
	}

	a, err := reid.Aggregate(StreamBroadcast, broadcast, signatureCap)
	if err != nil {
		return nil, err
	}
	b, err := reid.Aggregate(StreamTacticam, tacticam, signatureCap)
	if err != nil {
		return nil, err
	}
	s.logger.Infof("Сигнатуры: %s=%d, %s=%d (размерность %d)", StreamBroadcast, a.Len(), StreamTacticam, b.Len(), a.Dim())

	resolution, err := reid.Resolve(a, b)
	if err != nil {
		return nil, err
	}
	for _, m := range resolution.Matches {
		s.logger.Debugf("Идентификатор %d (%s) -> %d (%s), сходство %.4f",
			m.BIdentity, StreamTacticam, m.AIdentity, StreamBroadcast, m.Similarity)
	}

	return &ResolveResult{
		Broadcast:  a,
		Tacticam:   b,
		Resolution: resolution,
		Detections: reid.Apply(tacticam, resolution.Mapping()),
	}, nil
}

// render сохраняет размеченные кадры потока. Ошибки не прерывают прогон.
func (s *PipelineService) render(ctx context.Context, stream string, src FrameStream, in PipelineInput, detections []models.Detection) int {
	dir := filepath.Join(in.OutputDir, stream+"_frames")
	written, err := s.annotator.AnnotateStream(ctx, src, limitIndices(src.Indices(), in.FrameLimit), detections, dir)
	if err != nil {
		s.logger.Warnf("Не удалось сохранить размеченные кадры потока %s: %v", stream, err)
	}
	return written
}

func openStream(stream, dir string) (FrameStream, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: %s frames directory is required", ErrMalformedInput, stream)
	}
	src, err := frames.OpenDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s frames: %w", ErrMalformedInput, stream, err)
	}
	return src, nil
}

// limitIndices оставляет индексы 0..limit включительно. indices отсортированы.
func limitIndices(indices []int, limit int) []int {
	if limit <= 0 {
		return indices
	}
	for i, index := range indices {
		if index > limit {
			return indices[:i]
		}
	}
	return indices
}

func detectionsPath(outDir, stream string) string {
	return filepath.Join(outDir, stream+"_detections.json")
}

func trackedPath(outDir, stream string) string {
	return filepath.Join(outDir, stream+"_tracked.json")
}
