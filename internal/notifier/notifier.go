package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/pkg/kafka"
	"github.com/prohmpiriya/studio-booking/pkg/logger"
	"github.com/prohmpiriya/studio-booking/pkg/retry"
	"github.com/prohmpiriya/studio-booking/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Transport names accepted by New
const (
	TransportKafka = "kafka"
	TransportRedis = "redis"
	TransportLog   = "log"
)

// Publisher delivers an outbox message to the external notifier
type Publisher interface {
	Publish(ctx context.Context, msg *domain.OutboxMessage) error
	Name() string
	// Destination is the topic or queue messages are delivered to
	Destination() string
}

// RecordProducer is the subset of the Kafka producer the publisher needs
type RecordProducer interface {
	Produce(ctx context.Context, record *kafka.Record) error
}

// ListPusher is the subset of the Redis client the list publisher needs
type ListPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Config selects and configures a transport
type Config struct {
	Transport  string
	Topic      string
	RedisQueue string
	Source     string
}

// Deps are the clients a transport may need. Only the selected one must be set.
type Deps struct {
	Producer RecordProducer
	Redis    ListPusher
}

// New builds the publisher and dead-letter sink for the configured transport
func New(cfg *Config, deps Deps) (Publisher, retry.DLQPublisher, error) {
	switch strings.ToLower(cfg.Transport) {
	case TransportKafka:
		if deps.Producer == nil {
			return nil, nil, fmt.Errorf("kafka transport requires a producer")
		}
		dlq := retry.NewKafkaDLQPublisher(&jsonProducer{producer: deps.Producer}, &retry.DLQConfig{
			TopicSuffix: ".dlq",
			Source:      cfg.Source,
		})
		return NewKafkaPublisher(deps.Producer, cfg.Topic, cfg.Source), dlq, nil
	case TransportRedis:
		if deps.Redis == nil {
			return nil, nil, fmt.Errorf("redis transport requires a redis client")
		}
		return NewRedisPublisher(deps.Redis, cfg.RedisQueue), NewRedisDLQPublisher(deps.Redis, cfg.Source), nil
	case TransportLog, "":
		return NewLogPublisher(logger.Get()), retry.NewNoOpDLQPublisher(), nil
	default:
		return nil, nil, fmt.Errorf("unknown notifier transport: %s", cfg.Transport)
	}
}

// KafkaPublisher produces notifications keyed by member so one member's
// notifications keep their order
type KafkaPublisher struct {
	producer RecordProducer
	topic    string
	source   string
}

// NewKafkaPublisher creates a new Kafka publisher
func NewKafkaPublisher(producer RecordProducer, topic, source string) *KafkaPublisher {
	if topic == "" {
		topic = "studio.notifications"
	}
	if source == "" {
		source = "outbox-relay"
	}
	return &KafkaPublisher{producer: producer, topic: topic, source: source}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg *domain.OutboxMessage) error {
	headers := headersFor(msg, p.source)
	telemetry.InjectContext(ctx, headers)
	record := kafka.NewRecord(p.topic, msg.PartitionKey, msg.Payload, headers)
	return p.producer.Produce(ctx, record)
}

func (p *KafkaPublisher) Name() string {
	return TransportKafka
}

func (p *KafkaPublisher) Destination() string {
	return p.topic
}

// RedisPublisher appends notifications to a Redis list consumed by the notifier
type RedisPublisher struct {
	client ListPusher
	queue  string
}

// NewRedisPublisher creates a new Redis list publisher
func NewRedisPublisher(client ListPusher, queue string) *RedisPublisher {
	if queue == "" {
		queue = "studio:notifications"
	}
	return &RedisPublisher{client: client, queue: queue}
}

// Envelope is the JSON document pushed to the Redis queue
type Envelope struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
}

func (p *RedisPublisher) Publish(ctx context.Context, msg *domain.OutboxMessage) error {
	body, err := json.Marshal(Envelope{
		ID:        msg.ID,
		EventType: msg.EventType,
		Key:       msg.PartitionKey,
		Payload:   msg.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := p.client.RPush(ctx, p.queue, body).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", p.queue, err)
	}
	return nil
}

func (p *RedisPublisher) Name() string {
	return TransportRedis
}

func (p *RedisPublisher) Destination() string {
	return p.queue
}

// RedisDLQPublisher parks dead letters on "<queue>:dlq"
type RedisDLQPublisher struct {
	client ListPusher
	source string
}

// NewRedisDLQPublisher creates a new Redis dead-letter publisher
func NewRedisDLQPublisher(client ListPusher, source string) *RedisDLQPublisher {
	return &RedisDLQPublisher{client: client, source: source}
}

func (p *RedisDLQPublisher) PublishToDLQ(ctx context.Context, msg *retry.DLQMessage) error {
	if msg == nil {
		return fmt.Errorf("DLQ message cannot be nil")
	}
	msg.Source = p.source
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}
	return p.client.RPush(ctx, p.GetDLQTopic(msg.OriginalTopic), body).Err()
}

func (p *RedisDLQPublisher) GetDLQTopic(originalTopic string) string {
	return originalTopic + ":dlq"
}

// LogPublisher writes notifications to the log. Used in development.
type LogPublisher struct {
	log *logger.Logger
}

// NewLogPublisher creates a new log publisher
func NewLogPublisher(log *logger.Logger) *LogPublisher {
	if log == nil {
		log = logger.Get()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, msg *domain.OutboxMessage) error {
	p.log.InfoContext(ctx, fmt.Sprintf("Notification %s for %s", msg.EventType, msg.PartitionKey),
		zap.String("message_id", msg.ID),
		zap.ByteString("payload", msg.Payload),
	)
	return nil
}

func (p *LogPublisher) Name() string {
	return TransportLog
}

func (p *LogPublisher) Destination() string {
	return "log"
}

func headersFor(msg *domain.OutboxMessage, source string) map[string]string {
	return map[string]string{
		"event_type":     msg.EventType,
		"aggregate_type": msg.AggregateType,
		"aggregate_id":   msg.AggregateID,
		"message_id":     msg.ID,
		"content_type":   "application/json",
		"source":         source,
	}
}

// jsonProducer adapts a RecordProducer to the DLQ's JSON producer port
type jsonProducer struct {
	producer RecordProducer
}

func (j *jsonProducer) ProduceJSON(ctx context.Context, topic string, key string, data interface{}, headers map[string]string) error {
	value, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return j.producer.Produce(ctx, kafka.NewRecord(topic, key, value, headers))
}
