package events

import (
	"time"

	"github.com/IBM/sarama"
)

const clientID = "upgrade-service"

// ProducerConfig параметры продюсера событий апгрейдов
type ProducerConfig struct {
	Compression  sarama.CompressionCodec
	MaxRetries   int
	RetryBackoff time.Duration
	Timeout      time.Duration
}

// Config брокеры, топик и параметры продюсера
type Config struct {
	Brokers  []string
	Topic    string
	Producer ProducerConfig
}

// NewConfig создает конфигурацию с параметрами по умолчанию
func NewConfig(brokers []string, topic string) *Config {
	return &Config{
		Brokers: brokers,
		Topic:   topic,
		Producer: ProducerConfig{
			Compression:  sarama.CompressionSnappy,
			MaxRetries:   5,
			RetryBackoff: 200 * time.Millisecond,
			Timeout:      10 * time.Second,
		},
	}
}

// NewSaramaConfig собирает конфигурацию синхронного идемпотентного продюсера.
// Ключ сообщения (ID релиза) хешируется в партицию, события одного релиза идут по порядку.
func NewSaramaConfig(cfg *Config) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_3_0_0
	sc.ClientID = clientID

	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Compression = cfg.Producer.Compression
	sc.Producer.Timeout = cfg.Producer.Timeout
	sc.Producer.Retry.Max = cfg.Producer.MaxRetries
	sc.Producer.Retry.Backoff = cfg.Producer.RetryBackoff

	// идемпотентность требует acks=all и одного запроса в полете
	sc.Producer.Idempotent = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Net.MaxOpenRequests = 1

	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	return sc
}
