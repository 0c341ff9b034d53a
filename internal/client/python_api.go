package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"player-reid-go/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

const (
	// Размер входа экстрактора признаков (ResNet50 без классификатора)
	ExtractorInputWidth  = 256
	ExtractorInputHeight = 128

	jpegQuality = 95
)

// PythonAPIClient клиент для взаимодействия с Python сервисом моделей:
// детектор игроков и экстрактор признаков внешнего вида
type PythonAPIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewPythonAPIClient создает новый клиент для Python API
func NewPythonAPIClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *PythonAPIClient {
	return &PythonAPIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Detect отправляет кадр детектору и возвращает найденные объекты всех классов
func (c *PythonAPIClient) Detect(ctx context.Context, frame image.Image) ([]models.RawDetection, error) {
	var resp models.DetectResponse
	if err := c.postImage(ctx, "/detect", "frame", frame, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("Python API вернул ошибку детекции: %s", resp.Message)
	}
	return resp.Detections, nil
}

// Extract вычисляет эмбеддинг вырезки. Вырезка масштабируется до размера
// входа модели перед отправкой.
func (c *PythonAPIClient) Extract(ctx context.Context, crop image.Image) ([]float64, error) {
	resized := image.NewRGBA(image.Rect(0, 0, ExtractorInputWidth, ExtractorInputHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), crop, crop.Bounds(), draw.Src, nil)

	var resp models.EmbedResponse
	if err := c.postImage(ctx, "/embed", "crop", resized, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("Python API не смог извлечь признаки: %s", resp.Message)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("Python API вернул пустой эмбеддинг")
	}
	return resp.Embedding, nil
}

// postImage кодирует изображение в JPEG и отправляет его multipart запросом
func (c *PythonAPIClient) postImage(ctx context.Context, path, field string, img image.Image, out interface{}) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile(field, field+".jpg")
	if err != nil {
		return fmt.Errorf("ошибка создания form field для %s: %w", field, err)
	}
	if err := jpeg.Encode(part, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("ошибка кодирования JPEG: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия multipart writer: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("ошибка создания HTTP запроса: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	c.logger.Debugf("Отправка POST запроса на %s", url)
	return c.do(req, out)
}

// CheckHealth проверяет состояние Python API
func (c *PythonAPIClient) CheckHealth(ctx context.Context) (*models.HealthResponse, error) {
	c.logger.Debug("Проверка здоровья Python API")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания HTTP запроса: %w", err)
	}

	var health models.HealthResponse
	if err := c.do(req, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// do выполняет запрос и разбирает JSON ответ
func (c *PythonAPIClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка отправки HTTP запроса: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Python API вернул ошибку: статус %d, тело: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("ошибка парсинга JSON ответа: %w", err)
	}
	return nil
}
