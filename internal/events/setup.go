package events

import (
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
)

// EnsureTopic проверяет и создает топик событий
func EnsureTopic(cfg *Config, partitions int32, log *logger.Logger) error {
	if len(cfg.Brokers) == 0 || cfg.Brokers[0] == "" {
		return errors.New("kafka broker address is empty")
	}

	admin, err := sarama.NewClusterAdmin(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		log.Errorw("Failed to connect to Kafka for topic creation", "brokers", cfg.Brokers, "error", err)
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer admin.Close()

	topics, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("kafka list topics failed: %w", err)
	}
	if _, ok := topics[cfg.Topic]; ok {
		log.Debugw("Topic already exists", "topic", cfg.Topic)
		return nil
	}

	err = admin.CreateTopic(cfg.Topic, &sarama.TopicDetail{NumPartitions: partitions, ReplicationFactor: 1}, false)
	if err != nil && !errors.Is(err, sarama.ErrTopicAlreadyExists) {
		log.Errorw("Failed to create topic", "error", err, "topic", cfg.Topic)
		return fmt.Errorf("kafka create topic failed: %w", err)
	}

	log.Infow("Kafka topic ready", "topic", cfg.Topic, "partitions", partitions)
	return nil
}
