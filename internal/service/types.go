package service

import (
	"time"

	"player-reid-go/pkg/models"
)

// CreateRunRequest запрос на запуск конвейера
type CreateRunRequest struct {
	Name            string `json:"name"`
	BroadcastFrames string `json:"broadcast_frames" binding:"required"`
	TacticamFrames  string `json:"tacticam_frames" binding:"required"`
	FrameLimit      int    `json:"frame_limit" binding:"min=0"`
}

// RunStats статистика прогона по потокам
type RunStats struct {
	BroadcastDetections int `json:"broadcast_detections"`
	TacticamDetections  int `json:"tacticam_detections"`
	BroadcastTagged     int `json:"broadcast_tagged"`
	TacticamTagged      int `json:"tacticam_tagged"`
	BroadcastSignatures int `json:"broadcast_signatures"`
	TacticamSignatures  int `json:"tacticam_signatures"`
	DistinctTargets     int `json:"distinct_targets"`
}

// RunResponse ответ с информацией о прогоне
type RunResponse struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Status          string                 `json:"status"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	BroadcastFrames string                 `json:"broadcast_frames"`
	TacticamFrames  string                 `json:"tacticam_frames"`
	OutputDir       string                 `json:"output_dir"`
	FrameLimit      int                    `json:"frame_limit"`
	Stats           RunStats               `json:"stats"`
	ResolvedPath    string                 `json:"resolved_path,omitempty"`
	Mapping         map[int]int            `json:"mapping"`
	Matches         []models.IdentityMatch `json:"matches"`
	CreatedAt       time.Time              `json:"created_at"`
	FinishedAt      *time.Time             `json:"finished_at,omitempty"`
}

// ListRunsResponse ответ со списком прогонов
type ListRunsResponse struct {
	Runs  []RunResponse `json:"runs"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
}

// RunDetectionsResponse детекции тактической камеры с итоговыми идентификаторами
type RunDetectionsResponse struct {
	RunID      string             `json:"run_id"`
	Detections []models.Detection `json:"detections"`
	Total      int                `json:"total"`
}
