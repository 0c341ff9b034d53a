package handler

import (
	"net/http"

	"player-reid-go/internal/service"
	"player-reid-go/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ResolveHandler сопоставляет уже размеченные детекции двух камер без сохранения
type ResolveHandler struct {
	pipeline *service.PipelineService
	logger   *logrus.Logger
}

// NewResolveHandler создает новый обработчик
func NewResolveHandler(pipeline *service.PipelineService, logger *logrus.Logger) *ResolveHandler {
	return &ResolveHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// RegisterRoutes регистрирует маршруты API
func (h *ResolveHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/v1/resolve", h.Resolve)
}

// Resolve переназначает идентификаторы тактической камеры идентификаторам трансляции.
// 400 - некорректные детекции, 422 - у одного из потоков нет ни одной сигнатуры.
func (h *ResolveHandler) Resolve(c *gin.Context) {
	var req models.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Ошибка разбора запроса сопоставления: %v", err)
		c.JSON(http.StatusBadRequest, models.ResolveResponse{
			Status:  "error",
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}
	if req.SignatureCap < 0 {
		c.JSON(http.StatusBadRequest, models.ResolveResponse{
			Status:  "error",
			Message: "signature_cap должен быть >= 0",
		})
		return
	}

	h.logger.Infof("Сопоставление: %d детекций трансляции, %d детекций тактической камеры",
		len(req.Broadcast), len(req.Tacticam))

	resolved, err := h.pipeline.ResolveDetections(req.Broadcast, req.Tacticam, req.SignatureCap)
	if err != nil {
		outcome := service.Classify(err)
		h.logger.Errorf("Ошибка сопоставления (%s): %v", outcome.Status, err)
		c.JSON(outcome.HTTPStatus, models.ResolveResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}

	matches := make([]models.IdentityMatch, 0, len(resolved.Resolution.Matches))
	for _, m := range resolved.Resolution.Matches {
		matches = append(matches, models.IdentityMatch{
			TacticamID:  m.BIdentity,
			BroadcastID: m.AIdentity,
			Similarity:  m.Similarity,
		})
	}

	c.JSON(http.StatusOK, models.ResolveResponse{
		Status:   "success",
		Message:  "Сопоставление успешно завершено",
		Mapping:  resolved.Resolution.Mapping(),
		Matches:  matches,
		Tacticam: resolved.Detections,
	})
}
