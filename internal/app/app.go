package app

import (
	"fmt"

	"player-reid-go/internal/client"
	"player-reid-go/internal/config"
	"player-reid-go/internal/publisher"
	"player-reid-go/internal/reid"
	"player-reid-go/internal/service"

	"github.com/sirupsen/logrus"
)

// NewLogger создает логгер с уровнем из конфигурации: JSON для сервера,
// текстовый для CLI
func NewLogger(cfg *config.Config, jsonFormat bool) (*logrus.Logger, error) {
	logger := logrus.New()
	if jsonFormat {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: logging.level: %v", config.ErrInvalidConfig, err)
	}
	logger.SetLevel(level)
	return logger, nil
}

// Components собранные зависимости конвейера
type Components struct {
	ModelAPI  *client.PythonAPIClient
	Pipeline  *service.PipelineService
	publisher *publisher.KafkaPublisher
}

// Close освобождает ресурсы компонентов
func (c *Components) Close() {
	if c.publisher != nil {
		c.publisher.Close()
	}
}

// Build собирает клиент моделей, трекер, публикацию и конвейер
func Build(cfg *config.Config, logger *logrus.Logger) (*Components, error) {
	modelAPI := client.NewPythonAPIClient(cfg.PythonAPI.BaseURL, cfg.PythonAPITimeout(), logger)

	tagger := reid.NewTagger(reid.TaggerConfig{
		ConfidenceThreshold: cfg.Tagger.ConfidenceThreshold,
		MinCropSize:         cfg.Tagger.MinCropSize,
		Workers:             cfg.Tagger.Workers,
		ExtractTimeout:      cfg.Tagger.ExtractTimeout,
	}, modelAPI, logger)

	components := &Components{ModelAPI: modelAPI}

	// Без Kafka pub остается nil-интерфейсом
	var pub service.Publisher
	if cfg.Kafka.BootstrapServers != "" {
		kafkaPublisher, err := publisher.NewKafkaPublisher(publisher.Config{
			BootstrapServers: cfg.Kafka.BootstrapServers,
			Topic:            cfg.Kafka.Topic,
			SecurityProtocol: cfg.Kafka.SecurityProtocol,
			SASLMechanism:    cfg.Kafka.SASLMechanism,
			SASLUsername:     cfg.Kafka.SASLUsername,
			SASLPassword:     cfg.Kafka.SASLPassword,
		}, logger)
		if err != nil {
			return nil, err
		}
		components.publisher = kafkaPublisher
		pub = kafkaPublisher
	} else {
		logger.Info("Kafka не настроена, публикация детекций отключена")
	}

	components.Pipeline = service.NewPipelineService(service.OptionsFromConfig(cfg), modelAPI, tagger, pub, logger)
	return components, nil
}
