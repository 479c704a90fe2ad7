// Package kafka publishes alerts to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"tripwatch/internal/camera"
)

// AlertEvent is the JSON payload of one published alert.
type AlertEvent struct {
	ID         string    `json:"id"`
	CameraID   string    `json:"camera_id"`
	CameraName string    `json:"camera_name"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	BBox       [4]int    `json:"bbox"`
}

// Producer publishes alerts keyed by camera id, so each camera's alerts
// stay ordered within a partition.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewProducer connects to brokers.
func NewProducer(brokers []string, topic string, logger *slog.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerFrom(producer, topic, logger), nil
}

// NewProducerFrom wraps an existing sarama producer.
func NewProducerFrom(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger.With("component", "kafka"),
	}
}

// EmitAlert publishes alert.
func (p *Producer) EmitAlert(ctx context.Context, alert camera.Alert) error {
	payload, err := json.Marshal(AlertEvent{
		ID:         alert.ID,
		CameraID:   alert.CameraID,
		CameraName: alert.CameraName,
		Message:    alert.Message,
		Timestamp:  alert.Timestamp,
		BBox:       [4]int{alert.Box.Min.X, alert.Box.Min.Y, alert.Box.Dx(), alert.Box.Dy()},
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(alert.CameraID),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: alert.Timestamp,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish alert %s: %w", alert.ID, err)
	}

	p.logger.Debug("alert published", "topic", p.topic, "partition", partition, "offset", offset)
	return nil
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}
