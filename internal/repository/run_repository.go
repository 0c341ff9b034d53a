package repository

import (
	"errors"
	"fmt"

	"player-reid-go/internal/model"

	"gorm.io/gorm"
)

// ErrNotFound запись не найдена
var ErrNotFound = errors.New("record not found")

// RunRepository интерфейс для работы с прогонами
type RunRepository interface {
	Create(run *model.Run) error
	GetByID(id string) (*model.Run, error)
	List(page, pageSize int) ([]*model.Run, int64, error)
	Delete(id string) error
	Update(run *model.Run) error
}

// runRepository реализация RunRepository
type runRepository struct {
	db *gorm.DB
}

// NewRunRepository создает новый instance RunRepository
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{
		db: db,
	}
}

// Create создает новый прогон вместе с сопоставлениями
func (r *runRepository) Create(run *model.Run) error {
	tx := r.db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	matches := run.Matches
	run.Matches = nil

	// Сначала создаем прогон
	if err := tx.Create(run).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create run: %w", err)
	}

	if err := createMatches(tx, run.ID, matches); err != nil {
		tx.Rollback()
		return err
	}
	run.Matches = matches

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByID получает прогон по ID
func (r *runRepository) GetByID(id string) (*model.Run, error) {
	var run model.Run
	err := r.db.Preload("Matches", func(db *gorm.DB) *gorm.DB {
		return db.Order("tacticam_id ASC")
	}).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run with id %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// List получает список прогонов с пагинацией
func (r *runRepository) List(page, pageSize int) ([]*model.Run, int64, error) {
	var runs []*model.Run
	var total int64

	// Подсчитываем общее количество
	if err := r.db.Model(&model.Run{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	// Получаем прогоны с пагинацией
	offset := (page - 1) * pageSize
	err := r.db.Offset(offset).
		Limit(pageSize).
		Order("created_at DESC").
		Find(&runs).Error

	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, total, nil
}

// Delete удаляет прогон по ID
func (r *runRepository) Delete(id string) error {
	tx := r.db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	// Сначала удаляем сопоставления
	if err := tx.Where("run_id = ?", id).Delete(&model.IdentityMatch{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete matches: %w", err)
	}

	// Затем удаляем прогон
	result := tx.Where("id = ?", id).Delete(&model.Run{})
	if result.Error != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete run: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		tx.Rollback()
		return fmt.Errorf("run with id %s: %w", id, ErrNotFound)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Update обновляет прогон и заменяет его сопоставления
func (r *runRepository) Update(run *model.Run) error {
	tx := r.db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	matches := run.Matches
	run.Matches = nil

	// Обновляем прогон
	if err := tx.Save(run).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update run: %w", err)
	}

	// Удаляем старые сопоставления
	if err := tx.Unscoped().Where("run_id = ?", run.ID).Delete(&model.IdentityMatch{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete old matches: %w", err)
	}

	if err := createMatches(tx, run.ID, matches); err != nil {
		tx.Rollback()
		return err
	}
	run.Matches = matches

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// createMatches сохраняет сопоставления пачками
func createMatches(tx *gorm.DB, runID string, matches []model.IdentityMatch) error {
	if len(matches) == 0 {
		return nil
	}
	for i := range matches {
		matches[i].ID = 0 // Обнуляем ID для auto-increment
		matches[i].RunID = runID
	}
	if err := tx.CreateInBatches(matches, 500).Error; err != nil {
		return fmt.Errorf("failed to create matches: %w", err)
	}
	return nil
}
