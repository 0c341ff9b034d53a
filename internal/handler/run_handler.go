package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"player-reid-go/internal/repository"
	"player-reid-go/internal/service"
	"player-reid-go/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const healthCheckTimeout = 5 * time.Second

// ModelHealthChecker проверяет доступность сервиса моделей
type ModelHealthChecker interface {
	CheckHealth(ctx context.Context) (*models.HealthResponse, error)
}

// RunHandler обрабатывает HTTP запросы для работы с прогонами
type RunHandler struct {
	runService *service.RunService
	modelAPI   ModelHealthChecker
	dbCheck    func() error
	logger     *logrus.Logger
}

// NewRunHandler создает новый экземпляр RunHandler
func NewRunHandler(runService *service.RunService, modelAPI ModelHealthChecker, dbCheck func() error, logger *logrus.Logger) *RunHandler {
	return &RunHandler{
		runService: runService,
		modelAPI:   modelAPI,
		dbCheck:    dbCheck,
		logger:     logger,
	}
}

// RegisterRoutes регистрирует маршруты API
func (h *RunHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/runs", h.CreateRun)
		api.GET("/runs", h.ListRuns)
		api.GET("/runs/:id", h.GetRun)
		api.DELETE("/runs/:id", h.DeleteRun)
		api.GET("/runs/:id/detections", h.GetRunDetections)
		api.GET("/health", h.CheckHealth)
	}
}

// CreateRun запускает конвейер сопоставления для двух директорий кадров
func (h *RunHandler) CreateRun(c *gin.Context) {
	h.logger.Info("Получен запрос на запуск конвейера")

	var req service.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Ошибка разбора запроса: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат запроса: " + err.Error()})
		return
	}

	run, err := h.runService.CreateRun(c.Request.Context(), req)
	if err != nil {
		outcome := service.Classify(err)
		h.logger.Errorf("Прогон завершился ошибкой (%s): %v", outcome.Status, err)
		body := gin.H{"error": err.Error(), "status": outcome.Status}
		if run != nil {
			body["run"] = run
		}
		c.JSON(outcome.HTTPStatus, body)
		return
	}

	h.logger.Infof("Прогон %s завершен успешно", run.ID)
	c.JSON(http.StatusCreated, run)
}

// ListRuns возвращает список прогонов с пагинацией
func (h *RunHandler) ListRuns(c *gin.Context) {
	h.logger.Info("Получен запрос на получение списка прогонов")

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	size, err := strconv.Atoi(c.DefaultQuery("size", "10"))
	if err != nil || size < 1 || size > 100 {
		size = 10
	}

	runs, total, err := h.runService.ListRuns(page, size)
	if err != nil {
		h.logger.Errorf("Ошибка получения списка прогонов: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка получения списка прогонов"})
		return
	}

	h.logger.Infof("Возвращено %d прогонов из %d", len(runs), total)
	c.JSON(http.StatusOK, service.ListRunsResponse{
		Runs:  runs,
		Total: total,
		Page:  page,
		Size:  size,
	})
}

// GetRun возвращает прогон по ID
func (h *RunHandler) GetRun(c *gin.Context) {
	runID := c.Param("id")
	h.logger.Infof("Получен запрос на получение прогона с ID: %s", runID)

	run, err := h.runService.GetRunByID(runID)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// DeleteRun удаляет прогон по ID
func (h *RunHandler) DeleteRun(c *gin.Context) {
	runID := c.Param("id")
	h.logger.Infof("Получен запрос на удаление прогона с ID: %s", runID)

	if err := h.runService.DeleteRun(runID); err != nil {
		h.respondLookupError(c, err)
		return
	}

	h.logger.Info("Прогон успешно удален")
	c.JSON(http.StatusOK, gin.H{"message": "Прогон успешно удален"})
}

// GetRunDetections возвращает детекции тактической камеры с итоговыми идентификаторами
func (h *RunHandler) GetRunDetections(c *gin.Context) {
	runID := c.Param("id")

	detections, err := h.runService.RunDetections(runID)
	if err != nil {
		if errors.Is(err, service.ErrNoResolvedDetections) {
			c.JSON(http.StatusNotFound, gin.H{"error": "У прогона нет итоговых детекций"})
			return
		}
		h.respondLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, service.RunDetectionsResponse{
		RunID:      runID,
		Detections: detections,
		Total:      len(detections),
	})
}

// CheckHealth проверяет состояние сервиса моделей и базы данных
func (h *RunHandler) CheckHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	response := gin.H{"status": "healthy"}
	code := http.StatusOK

	if health, err := h.modelAPI.CheckHealth(ctx); err != nil {
		h.logger.Errorf("Python API недоступен: %v", err)
		response["model_api"] = "unavailable"
		code = http.StatusServiceUnavailable
	} else {
		response["model_api"] = health.Status
		response["model_loaded"] = health.ModelLoaded
	}

	if err := h.dbCheck(); err != nil {
		h.logger.Errorf("База данных недоступна: %v", err)
		response["database"] = "unavailable"
		code = http.StatusServiceUnavailable
	} else {
		response["database"] = "healthy"
	}

	if code != http.StatusOK {
		response["status"] = "unhealthy"
	}
	c.JSON(code, response)
}

func (h *RunHandler) respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Прогон не найден"})
		return
	}
	h.logger.Errorf("Ошибка обращения к прогону: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка обращения к прогону"})
}
