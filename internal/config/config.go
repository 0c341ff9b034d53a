package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig конфигурация отсутствует или содержит некорректные поля
var ErrInvalidConfig = errors.New("invalid configuration")

// Config структура конфигурации приложения.
// Ключи YAML совпадают с config.yaml исходного конвейера.
type Config struct {
	BroadcastFrames string `yaml:"broadcast_frames"` // Директория кадров камеры трансляции (A)
	TacticamFrames  string `yaml:"tacticam_frames"`  // Директория кадров тактической камеры (B)
	OutputDir       string `yaml:"output_dir"`
	FrameLimit      int    `yaml:"frame_limit"` // 0 - без ограничения

	Detector struct {
		ClassID int `yaml:"class_id"` // Класс "игрок"
	} `yaml:"detector"`
	Tagger struct {
		ConfidenceThreshold float64       `yaml:"confidence_threshold"`
		MinCropSize         int           `yaml:"min_crop_size"`
		Workers             int           `yaml:"workers"`
		ExtractTimeout      time.Duration `yaml:"extract_timeout"`
	} `yaml:"tagger"`
	Aggregator struct {
		SignatureCap int `yaml:"signature_cap"` // Сколько первых эмбеддингов усреднять
	} `yaml:"aggregator"`
	PythonAPI struct {
		BaseURL string `yaml:"base_url"`
		Timeout int    `yaml:"timeout"` // в секундах
	} `yaml:"python_api"`
	Render struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"render"`
	Report struct {
		HeatMap bool `yaml:"heatmap"`
	} `yaml:"report"`
	Kafka struct {
		BootstrapServers string `yaml:"bootstrap_servers"` // Пусто - публикация отключена
		Topic            string `yaml:"topic"`
		SecurityProtocol string `yaml:"security_protocol"`
		SASLMechanism    string `yaml:"sasl_mechanism"`
		SASLUsername     string `yaml:"sasl_username"`
		SASLPassword     string `yaml:"sasl_password"`
	} `yaml:"kafka"`
	Server struct {
		Port        int    `yaml:"port"`
		Host        string `yaml:"host"`
		Environment string `yaml:"environment"`
	} `yaml:"server"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	cfg := &Config{}

	cfg.OutputDir = "outputs"

	cfg.Tagger.ConfidenceThreshold = 0.3
	cfg.Tagger.MinCropSize = 10
	cfg.Tagger.Workers = 4

	cfg.Aggregator.SignatureCap = 30

	cfg.PythonAPI.BaseURL = "http://localhost:8000"
	cfg.PythonAPI.Timeout = 300 // 5 минут по умолчанию

	cfg.Kafka.Topic = "player-reid-detections"
	cfg.Kafka.SecurityProtocol = "PLAINTEXT"

	cfg.Server.Port = 8080
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Environment = "development"

	cfg.Logging.Level = "info"

	return cfg
}

// LoadConfig загружает конфигурацию: значения по умолчанию, затем YAML файл
// (если path не пуст), затем переменные окружения
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %v", ErrInvalidConfig, path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv переопределяет значения из переменных окружения.
// Значение, которое не удалось разобрать, является ошибкой конфигурации.
func (c *Config) applyEnv() error {
	env := &envReader{}

	c.BroadcastFrames = getEnv("BROADCAST_FRAMES", c.BroadcastFrames)
	c.TacticamFrames = getEnv("TACTICAM_FRAMES", c.TacticamFrames)
	c.OutputDir = getEnv("OUTPUT_DIR", c.OutputDir)
	c.FrameLimit = env.getEnvInt("FRAME_LIMIT", c.FrameLimit)

	c.Detector.ClassID = env.getEnvInt("DETECTOR_CLASS_ID", c.Detector.ClassID)

	c.Tagger.ConfidenceThreshold = env.getEnvFloat("TAGGER_CONFIDENCE_THRESHOLD", c.Tagger.ConfidenceThreshold)
	c.Tagger.MinCropSize = env.getEnvInt("TAGGER_MIN_CROP_SIZE", c.Tagger.MinCropSize)
	c.Tagger.Workers = env.getEnvInt("TAGGER_WORKERS", c.Tagger.Workers)
	c.Tagger.ExtractTimeout = env.getEnvDuration("TAGGER_EXTRACT_TIMEOUT", c.Tagger.ExtractTimeout)

	c.Aggregator.SignatureCap = env.getEnvInt("AGGREGATOR_SIGNATURE_CAP", c.Aggregator.SignatureCap)

	c.PythonAPI.BaseURL = getEnv("PYTHON_API_BASE_URL", c.PythonAPI.BaseURL)
	c.PythonAPI.Timeout = env.getEnvInt("PYTHON_API_TIMEOUT_SECONDS", c.PythonAPI.Timeout)

	c.Render.Enabled = env.getEnvBool("RENDER_ENABLED", c.Render.Enabled)
	c.Report.HeatMap = env.getEnvBool("REPORT_HEATMAP", c.Report.HeatMap)

	c.Kafka.BootstrapServers = getEnv("KAFKA_BOOTSTRAP_SERVERS", c.Kafka.BootstrapServers)
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)
	c.Kafka.SecurityProtocol = getEnv("KAFKA_SECURITY_PROTOCOL", c.Kafka.SecurityProtocol)
	c.Kafka.SASLMechanism = getEnv("KAFKA_SASL_MECHANISM", c.Kafka.SASLMechanism)
	c.Kafka.SASLUsername = getEnv("KAFKA_SASL_USERNAME", c.Kafka.SASLUsername)
	c.Kafka.SASLPassword = getEnv("KAFKA_SASL_PASSWORD", c.Kafka.SASLPassword)

	c.Server.Port = env.getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Environment = getEnv("ENVIRONMENT", c.Server.Environment)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)

	if len(env.errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(env.errs...))
	}
	return nil
}

// Validate проверяет значения конфигурации
func (c *Config) Validate() error {
	switch {
	case c.OutputDir == "":
		return fmt.Errorf("%w: output_dir is required", ErrInvalidConfig)
	case c.FrameLimit < 0:
		return fmt.Errorf("%w: frame_limit must be >= 0", ErrInvalidConfig)
	case c.Tagger.ConfidenceThreshold < 0 || c.Tagger.ConfidenceThreshold > 1:
		return fmt.Errorf("%w: tagger.confidence_threshold must be in [0,1]", ErrInvalidConfig)
	case c.Tagger.MinCropSize < 1:
		return fmt.Errorf("%w: tagger.min_crop_size must be >= 1", ErrInvalidConfig)
	case c.Tagger.Workers < 1:
		return fmt.Errorf("%w: tagger.workers must be >= 1", ErrInvalidConfig)
	case c.Tagger.ExtractTimeout < 0:
		return fmt.Errorf("%w: tagger.extract_timeout must be >= 0", ErrInvalidConfig)
	case c.Aggregator.SignatureCap < 1:
		return fmt.Errorf("%w: aggregator.signature_cap must be >= 1", ErrInvalidConfig)
	case c.PythonAPI.BaseURL == "":
		return fmt.Errorf("%w: python_api.base_url is required", ErrInvalidConfig)
	case c.PythonAPI.Timeout <= 0:
		return fmt.Errorf("%w: python_api.timeout must be > 0", ErrInvalidConfig)
	case c.Kafka.BootstrapServers != "" && c.Kafka.Topic == "":
		return fmt.Errorf("%w: kafka.topic is required when kafka is enabled", ErrInvalidConfig)
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port out of range", ErrInvalidConfig)
	}
	return nil
}

// ValidateStreams проверяет, что заданы директории обоих потоков
func (c *Config) ValidateStreams() error {
	if c.BroadcastFrames == "" {
		return fmt.Errorf("%w: broadcast_frames is required", ErrInvalidConfig)
	}
	if c.TacticamFrames == "" {
		return fmt.Errorf("%w: tacticam_frames is required", ErrInvalidConfig)
	}
	return nil
}

// PythonAPITimeout таймаут клиента Python API
func (c *Config) PythonAPITimeout() time.Duration {
	return time.Duration(c.PythonAPI.Timeout) * time.Second
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader разбирает типизированные переменные окружения и накапливает ошибки
type envReader struct {
	errs []error
}

func (r *envReader) fail(key, value string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %v", key, value, err))
}

// getEnvInt получает int значение переменной окружения или возвращает значение по умолчанию
func (r *envReader) getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, value, err)
		return defaultValue
	}
	return intValue
}

func (r *envReader) getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.fail(key, value, err)
		return defaultValue
	}
	return f
}

func (r *envReader) getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		r.fail(key, value, err)
		return defaultValue
	}
	return b
}

func (r *envReader) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.fail(key, value, err)
		return defaultValue
	}
	return d
}
