package model

import (
	"time"

	"gorm.io/gorm"
)

// Статусы прогона конвейера
const (
	RunStatusRunning        = "running"
	RunStatusCompleted      = "completed"
	RunStatusFailedInput    = "failed_input"     // Некорректные входные данные
	RunStatusFailedNoSignal = "failed_no_signal" // Поток не дал ни одной сигнатуры
	RunStatusFailed         = "failed"
)

// Run представляет прогон конвейера сопоставления в базе данных
type Run struct {
	ID              string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name            string `gorm:"type:varchar(255);not null" json:"name"`
	BroadcastFrames string `gorm:"type:varchar(500);not null" json:"broadcast_frames"`
	TacticamFrames  string `gorm:"type:varchar(500);not null" json:"tacticam_frames"`
	OutputDir       string `gorm:"type:varchar(500)" json:"output_dir"`
	FrameLimit      int    `gorm:"not null;default:0" json:"frame_limit"`
	Status          string `gorm:"type:varchar(32);not null;index" json:"status"`
	ErrorMessage    string `gorm:"type:text" json:"error_message,omitempty"`

	// Статистика по потокам
	BroadcastDetections int `gorm:"not null;default:0" json:"broadcast_detections"`
	TacticamDetections  int `gorm:"not null;default:0" json:"tacticam_detections"`
	BroadcastTagged     int `gorm:"not null;default:0" json:"broadcast_tagged"`
	TacticamTagged      int `gorm:"not null;default:0" json:"tacticam_tagged"`
	BroadcastSignatures int `gorm:"not null;default:0" json:"broadcast_signatures"`
	TacticamSignatures  int `gorm:"not null;default:0" json:"tacticam_signatures"`
	DistinctTargets     int `gorm:"not null;default:0" json:"distinct_targets"`

	ResolvedPath string `gorm:"type:varchar(500)" json:"resolved_path"`

	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Связь с сопоставлениями
	Matches []IdentityMatch `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"matches"`
}

// IdentityMatch представляет сопоставление идентификатора тактической камеры
// идентификатору камеры трансляции
type IdentityMatch struct {
	ID          uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID       string  `gorm:"type:varchar(36);not null;index" json:"run_id"`
	TacticamID  int     `gorm:"not null" json:"tacticam_id"`
	BroadcastID int     `gorm:"not null;index" json:"broadcast_id"`
	Similarity  float64 `gorm:"not null" json:"similarity"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Обратная связь с прогоном
	Run Run `gorm:"foreignKey:RunID;references:ID" json:"-"`
}

// TableName указывает имя таблицы для Run
func (Run) TableName() string {
	return "runs"
}

// TableName указывает имя таблицы для IdentityMatch
func (IdentityMatch) TableName() string {
	return "identity_matches"
}
