package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"player-reid-go/pkg/models"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"
)

// Config параметры подключения к Kafka
type Config struct {
	BootstrapServers string
	Topic            string
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
}

// DetectionEvent сообщение о детекции с итоговым идентификатором.
// Эмбеддинг в сообщение не входит.
type DetectionEvent struct {
	RunID      string      `json:"run_id"`
	Stream     string      `json:"stream"`
	Frame      int         `json:"frame"`
	BBox       models.BBox `json:"bbox"`
	Confidence float64     `json:"confidence"`
	Identity   *int        `json:"id,omitempty"`
}

// KafkaPublisher публикует размеченные детекции в Kafka
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
	logger   *logrus.Logger

	messagesAcked  atomic.Int64
	messagesFailed atomic.Int64
}

// NewKafkaPublisher создает producer
func NewKafkaPublisher(cfg Config, logger *logrus.Logger) (*KafkaPublisher, error) {
	configMap, err := producerConfig(cfg)
	if err != nil {
		return nil, err
	}

	p, err := kafka.NewProducer(configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	logger.Infof("Kafka producer инициализирован: топик %s, брокеры %s", cfg.Topic, cfg.BootstrapServers)
	return &KafkaPublisher{producer: p, topic: cfg.Topic, logger: logger}, nil
}

// producerConfig собирает параметры producer, SASL добавляется только при заданном механизме
func producerConfig(cfg Config) (*kafka.ConfigMap, error) {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  cfg.BootstrapServers,
		"security.protocol":  cfg.SecurityProtocol,
		"acks":               "all",
		"enable.idempotence": true,
		"compression.type":   "snappy",
		"linger.ms":          10,
		"request.timeout.ms": 30000,
	}
	if cfg.SASLMechanism == "" {
		return configMap, nil
	}

	if err := configMap.SetKey("sasl.mechanism", cfg.SASLMechanism); err != nil {
		return nil, fmt.Errorf("failed to set SASL mechanism: %w", err)
	}
	if err := configMap.SetKey("sasl.username", cfg.SASLUsername); err != nil {
		return nil, fmt.Errorf("failed to set SASL username: %w", err)
	}
	if err := configMap.SetKey("sasl.password", cfg.SASLPassword); err != nil {
		return nil, fmt.Errorf("failed to set SASL password: %w", err)
	}
	return configMap, nil
}

// PublishDetections отправляет каждую детекцию отдельным сообщением с
// ключом-идентификатором и ждет подтверждения доставки всех сообщений.
// Возвращает количество доставленных сообщений.
func (p *KafkaPublisher) PublishDetections(ctx context.Context, runID, stream string, detections []models.Detection) (int, error) {
	deliveryChan := make(chan kafka.Event, len(detections))

	sent := 0
	for _, d := range detections {
		msg, err := BuildMessage(p.topic, runID, stream, d)
		if err != nil {
			return 0, err
		}
		if err := p.producer.Produce(msg, deliveryChan); err != nil {
			p.messagesFailed.Add(1)
			p.logger.Warnf("Не удалось поставить сообщение в очередь: %v", err)
			continue
		}
		sent++
	}

	delivered := 0
	var firstErr error
	for i := 0; i < sent; i++ {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case e := <-deliveryChan:
			m, ok := e.(*kafka.Message)
			if !ok {
				continue
			}
			if m.TopicPartition.Error != nil {
				p.messagesFailed.Add(1)
				if firstErr == nil {
					firstErr = m.TopicPartition.Error
				}
				continue
			}
			p.messagesAcked.Add(1)
			delivered++
		}
	}

	if delivered < len(detections) {
		if firstErr == nil {
			firstErr = fmt.Errorf("queued %d of %d messages", sent, len(detections))
		}
		return delivered, fmt.Errorf("delivered %d of %d messages: %w", delivered, len(detections), firstErr)
	}
	return delivered, nil
}

// Stats счетчики доставки за время жизни producer
func (p *KafkaPublisher) Stats() (acked, failed int64) {
	return p.messagesAcked.Load(), p.messagesFailed.Load()
}

// Close дожидается отправки очереди и закрывает producer
func (p *KafkaPublisher) Close() {
	remaining := p.producer.Flush(int((10 * time.Second).Milliseconds()))
	if remaining > 0 {
		p.logger.Warnf("Kafka producer закрыт, не отправлено сообщений: %d", remaining)
	}
	p.producer.Close()
}

// BuildMessage формирует сообщение Kafka для одной детекции
func BuildMessage(topic, runID, stream string, d models.Detection) (*kafka.Message, error) {
	event := DetectionEvent{
		RunID:      runID,
		Stream:     stream,
		Frame:      d.Frame,
		BBox:       d.BBox,
		Confidence: d.Confidence,
		Identity:   d.Identity,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode detection event: %w", err)
	}

	key := "unassigned"
	if d.Identity != nil {
		key = strconv.Itoa(*d.Identity)
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          payload,
		Headers:        []kafka.Header{{Key: "run_id", Value: []byte(runID)}},
	}, nil
}
