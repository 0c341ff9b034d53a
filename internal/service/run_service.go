package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"player-reid-go/internal/model"
	"player-reid-go/internal/repository"
	"player-reid-go/internal/store"
	"player-reid-go/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Pipeline выполняет полный прогон конвейера
type Pipeline interface {
	RunAll(ctx context.Context, in PipelineInput) (*PipelineResult, error)
}

// RunService сервис для работы с прогонами конвейера
type RunService struct {
	runRepo    repository.RunRepository
	pipeline   Pipeline
	logger     *logrus.Logger
	outputRoot string
}

// NewRunService создает новый сервис для работы с прогонами
func NewRunService(runRepo repository.RunRepository, pipeline Pipeline, logger *logrus.Logger, outputRoot string) *RunService {
	return &RunService{
		runRepo:    runRepo,
		pipeline:   pipeline,
		logger:     logger,
		outputRoot: outputRoot,
	}
}

// CreateRun запускает конвейер синхронно и сохраняет прогон с его
// сопоставлениями. При ошибке конвейера прогон сохраняется со статусом
// неудачи и возвращается вместе с ошибкой.
func (s *RunService) CreateRun(ctx context.Context, req CreateRunRequest) (*RunResponse, error) {
	if req.BroadcastFrames == "" || req.TacticamFrames == "" {
		return nil, fmt.Errorf("%w: broadcast_frames and tacticam_frames are required", ErrMalformedInput)
	}
	if req.FrameLimit < 0 {
		return nil, fmt.Errorf("%w: frame_limit must be >= 0", ErrMalformedInput)
	}

	runID := s.GenerateRunID()
	name := req.Name
	if name == "" {
		name = fmt.Sprintf("Run %s", runID[:8])
	}

	run := &model.Run{
		ID:              runID,
		Name:            name,
		BroadcastFrames: req.BroadcastFrames,
		TacticamFrames:  req.TacticamFrames,
		OutputDir:       filepath.Join(s.outputRoot, runID),
		FrameLimit:      req.FrameLimit,
		Status:          model.RunStatusRunning,
	}

	s.logger.Infof("Создаем прогон %s (%s)", runID, name)
	if err := s.runRepo.Create(run); err != nil {
		s.logger.Errorf("Ошибка сохранения прогона в БД: %v", err)
		return nil, fmt.Errorf("failed to save run to database: %w", err)
	}

	result, runErr := s.pipeline.RunAll(ctx, PipelineInput{
		RunID:           run.ID,
		BroadcastFrames: run.BroadcastFrames,
		TacticamFrames:  run.TacticamFrames,
		OutputDir:       run.OutputDir,
		FrameLimit:      run.FrameLimit,
	})

	applyResult(run, result)
	outcome := Classify(runErr)
	run.Status = outcome.Status
	if runErr != nil {
		run.ErrorMessage = runErr.Error()
		s.logger.Errorf("Прогон %s завершился со статусом %s: %v", runID, outcome.Status, runErr)
	}
	finished := time.Now()
	run.FinishedAt = &finished

	if err := s.runRepo.Update(run); err != nil {
		s.logger.Errorf("Ошибка обновления прогона %s: %v", runID, err)
		if runErr == nil {
			return nil, fmt.Errorf("failed to update run: %w", err)
		}
	}

	s.logger.Infof("Прогон %s сохранен со статусом %s, сопоставлений: %d", runID, run.Status, len(run.Matches))
	return modelToResponse(run), runErr
}

// applyResult переносит итоги конвейера в модель прогона
func applyResult(run *model.Run, result *PipelineResult) {
	if result == nil {
		return
	}
	run.BroadcastDetections = result.Broadcast.Detections
	run.TacticamDetections = result.Tacticam.Detections
	run.BroadcastTagged = result.Broadcast.Tagged
	run.TacticamTagged = result.Tacticam.Tagged
	run.BroadcastSignatures = result.Broadcast.Signatures
	run.TacticamSignatures = result.Tacticam.Signatures
	run.DistinctTargets = result.DistinctTargets
	run.ResolvedPath = result.ResolvedPath

	run.Matches = make([]model.IdentityMatch, 0, len(result.Matches))
	for _, m := range result.Matches {
		run.Matches = append(run.Matches, model.IdentityMatch{
			RunID:       run.ID,
			TacticamID:  m.BIdentity,
			BroadcastID: m.AIdentity,
			Similarity:  m.Similarity,
		})
	}
}

// GetRunByID получает прогон по ID
func (s *RunService) GetRunByID(runID string) (*RunResponse, error) {
	s.logger.Infof("Получаем прогон %s из базы данных", runID)

	run, err := s.runRepo.GetByID(runID)
	if err != nil {
		s.logger.Errorf("Ошибка получения прогона: %v", err)
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return modelToResponse(run), nil
}

// ListRuns получает список прогонов с пагинацией
func (s *RunService) ListRuns(page, pageSize int) ([]RunResponse, int64, error) {
	s.logger.Infof("Получаем список прогонов: страница %d, размер %d", page, pageSize)

	runs, total, err := s.runRepo.List(page, pageSize)
	if err != nil {
		s.logger.Errorf("Ошибка получения списка прогонов: %v", err)
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}

	responses := make([]RunResponse, len(runs))
	for i, run := range runs {
		responses[i] = *modelToResponse(run)
	}

	s.logger.Infof("Получено %d прогонов из %d общих", len(responses), total)
	return responses, total, nil
}

// DeleteRun удаляет прогон и его артефакты
func (s *RunService) DeleteRun(runID string) error {
	s.logger.Infof("Удаляем прогон %s", runID)

	run, err := s.runRepo.GetByID(runID)
	if err != nil {
		s.logger.Errorf("Ошибка получения прогона для удаления: %v", err)
		return fmt.Errorf("failed to get run for deletion: %w", err)
	}

	if err := s.runRepo.Delete(runID); err != nil {
		s.logger.Errorf("Ошибка удаления прогона из БД: %v", err)
		return fmt.Errorf("failed to delete run from database: %w", err)
	}

	if run.OutputDir != "" {
		if err := os.RemoveAll(run.OutputDir); err != nil {
			s.logger.Warnf("Не удалось удалить артефакты %s: %v", run.OutputDir, err)
		} else {
			s.logger.Infof("Артефакты %s удалены", run.OutputDir)
		}
	}

	s.logger.Infof("Прогон %s успешно удален", runID)
	return nil
}

// ErrNoResolvedDetections у прогона нет файла с итоговыми детекциями
var ErrNoResolvedDetections = errors.New("run has no resolved detections")

// RunDetections возвращает детекции тактической камеры с итоговыми идентификаторами
func (s *RunService) RunDetections(runID string) ([]models.Detection, error) {
	run, err := s.runRepo.GetByID(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run.ResolvedPath == "" {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNoResolvedDetections)
	}
	return store.Load(run.ResolvedPath)
}

// GenerateRunID генерирует уникальный ID для прогона
func (s *RunService) GenerateRunID() string {
	return uuid.New().String()
}

// modelToResponse преобразует модель базы данных в ответ API
func modelToResponse(run *model.Run) *RunResponse {
	response := &RunResponse{
		ID:              run.ID,
		Name:            run.Name,
		Status:          run.Status,
		ErrorMessage:    run.ErrorMessage,
		BroadcastFrames: run.BroadcastFrames,
		TacticamFrames:  run.TacticamFrames,
		OutputDir:       run.OutputDir,
		FrameLimit:      run.FrameLimit,
		Stats: RunStats{
			BroadcastDetections: run.BroadcastDetections,
			TacticamDetections:  run.TacticamDetections,
			BroadcastTagged:     run.BroadcastTagged,
			TacticamTagged:      run.TacticamTagged,
			BroadcastSignatures: run.BroadcastSignatures,
			TacticamSignatures:  run.TacticamSignatures,
			DistinctTargets:     run.DistinctTargets,
		},
		ResolvedPath: run.ResolvedPath,
		Mapping:      make(map[int]int, len(run.Matches)),
		Matches:      []models.IdentityMatch{},
		CreatedAt:    run.CreatedAt,
		FinishedAt:   run.FinishedAt,
	}

	for _, m := range run.Matches {
		response.Matches = append(response.Matches, models.IdentityMatch{
			TacticamID:  m.TacticamID,
			BroadcastID: m.BroadcastID,
			Similarity:  m.Similarity,
		})
		response.Mapping[m.TacticamID] = m.BroadcastID
	}

	return response
}
