package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"campus-chat/internal/models"

	"github.com/IBM/sarama"
)

// Producer publishes persisted chat messages to a topic keyed by room so
// downstream consumers (notification fan-out, archival) see per-room
// ordering.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

func NewProducer(brokers []string, topic string, logger *slog.Logger) (*Producer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = "campus-chat"

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}, nil
}

func (p *Producer) PublishMessage(msg *models.Message) error {
	payload, err := json.Marshal(msg.ToResponse())
	if err != nil {
		return fmt.Errorf("failed to marshal message event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("room-%d", msg.RoomID)),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to publish message event: %w", err)
	}

	p.logger.Debug("message event published", "messageID", msg.ID, "partition", partition, "offset", offset)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
