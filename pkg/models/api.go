package models

// DetectResponse определяет структуру ответа детектора Python API
type DetectResponse struct {
	Status     string         `json:"status"`     // Статус выполнения
	Message    string         `json:"message"`    // Сообщение
	Detections []RawDetection `json:"detections"` // Найденные объекты
}

// EmbedResponse определяет структуру ответа экстрактора признаков Python API
type EmbedResponse struct {
	Status    string    `json:"status"`    // Статус выполнения (success/error)
	Message   string    `json:"message"`   // Сообщение об ошибке
	Embedding []float64 `json:"embedding"` // Вектор признаков, например 2048 значений
}

// HealthResponse представляет ответ проверки здоровья сервиса
type HealthResponse struct {
	Status      string `json:"status"`       // Статус сервиса (healthy/unhealthy)
	ModelLoaded bool   `json:"model_loaded"` // Загружены ли модели
	Version     string `json:"version"`      // Версия сервиса
}

// ResolveRequest запрос на сопоставление игроков двух камер
type ResolveRequest struct {
	Broadcast    []Detection `json:"broadcast"`               // Размеченные детекции камеры A
	Tacticam     []Detection `json:"tacticam"`                // Размеченные детекции камеры B
	SignatureCap int         `json:"signature_cap,omitempty"` // Сколько эмбеддингов усреднять
}

// IdentityMatch соответствие идентификатора камеры B идентификатору камеры A
type IdentityMatch struct {
	TacticamID  int     `json:"tacticam_id"`
	BroadcastID int     `json:"broadcast_id"`
	Similarity  float64 `json:"similarity"`
}

// ResolveResponse результат сопоставления
type ResolveResponse struct {
	Status   string          `json:"status"`
	Message  string          `json:"message,omitempty"`
	Mapping  map[int]int     `json:"mapping"`
	Matches  []IdentityMatch `json:"matches"`
	Tacticam []Detection     `json:"tacticam"`
}
