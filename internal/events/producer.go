// Package events публикует события покупок апгрейдов в Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
)

// Типы событий (передаются в заголовке event_type)
const (
	EventUpgradePurchased    = "upgrade.purchased"
	EventIntentStatusChanged = "upgrade.intent_status_changed"
)

// PurchaseEvent покупка применена к релизу
type PurchaseEvent struct {
	ReleaseID    string               `json:"release_id"`
	UserID       string               `json:"user_id"`
	ProductTypes []domain.ProductType `json:"product_types"`
	Distribution string               `json:"distribution"`
	Funding      domain.FundingMethod `json:"funding"`
	Amount       int64                `json:"amount"`
	Currency     string               `json:"currency,omitempty"`
	IntentID     string               `json:"intent_id,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}

// IntentEvent смена статуса платежного намерения
type IntentEvent struct {
	IntentID  string              `json:"intent_id"`
	ReleaseID string              `json:"release_id"`
	Status    domain.IntentStatus `json:"status"`
	Amount    int64               `json:"amount"`
	Timestamp time.Time           `json:"timestamp"`
}

// Publisher интерфейс для отправки событий
type Publisher interface {
	PublishPurchase(ctx context.Context, event PurchaseEvent) error
	PublishIntentStatus(ctx context.Context, event IntentEvent) error
	Close() error
}

type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

// NewKafkaPublisher создает издателя поверх sarama.SyncProducer
func NewKafkaPublisher(producer sarama.SyncProducer, topic string, log *logger.Logger) Publisher {
	return &kafkaPublisher{
		producer: producer,
		topic:    topic,
		log:      log,
	}
}

// NewSyncProducer подключается к брокерам
func NewSyncProducer(cfg *Config, log *logger.Logger) (sarama.SyncProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		log.Errorw("Failed to create Kafka producer", "error", err, "brokers", cfg.Brokers)
		return nil, fmt.Errorf("kafka: failed to create producer: %w", err)
	}
	log.Infow("Kafka producer initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return producer, nil
}

// PublishPurchase публикует событие о примененной покупке
func (p *kafkaPublisher) PublishPurchase(ctx context.Context, event PurchaseEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.publish(ctx, EventUpgradePurchased, event.ReleaseID, event)
}

// PublishIntentStatus публикует событие о смене статуса намерения
func (p *kafkaPublisher) PublishIntentStatus(ctx context.Context, event IntentEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.publish(ctx, EventIntentStatusChanged, event.ReleaseID, event)
}

// publish ключ сообщения - ID релиза, события одного релиза попадают в одну партицию
func (p *kafkaPublisher) publish(ctx context.Context, eventType, key string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	messageValue, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(messageValue),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(eventType),
			},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		p.log.Errorw("Failed to publish event", "error", err, "eventType", eventType, "key", key)
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	p.log.Infow("Published event", "eventType", eventType, "topic", p.topic, "partition", partition, "offset", offset)
	return nil
}

// Close закрывает продюсер
func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher используется, когда Kafka не настроена
type NopPublisher struct{}

// PublishPurchase реализует Publisher
func (NopPublisher) PublishPurchase(ctx context.Context, event PurchaseEvent) error { return nil }

// PublishIntentStatus реализует Publisher
func (NopPublisher) PublishIntentStatus(ctx context.Context, event IntentEvent) error { return nil }

// Close реализует Publisher
func (NopPublisher) Close() error { return nil }
