package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/warp/vacation-engine/audit"
)

// DefaultAlertTopic receives critical audit alerts.
const DefaultAlertTopic = "vacation.audit.critical"

// producer is the part of *kgo.Client the notifier needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Kafka publishes alerts to a Kafka topic.
type Kafka struct {
	producer producer
	topic    string
	timeout  time.Duration
	logger   *slog.Logger
}

// KafkaOption configures the Kafka notifier.
type KafkaOption func(*Kafka)

// WithTopic overrides DefaultAlertTopic.
func WithTopic(topic string) KafkaOption {
	return func(k *Kafka) {
		k.topic = topic
	}
}

// WithTimeout bounds one delivery.
func WithTimeout(d time.Duration) KafkaOption {
	return func(k *Kafka) {
		k.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) KafkaOption {
	return func(k *Kafka) {
		k.logger = logger
	}
}

// NewKafka wraps an existing producer.
func NewKafka(p producer, opts ...KafkaOption) *Kafka {
	k := &Kafka{producer: p, topic: DefaultAlertTopic, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(k)
	}
	if k.logger == nil {
		k.logger = slog.Default()
	}
	return k
}

// NewKafkaClient builds a franz-go client for the given brokers.
func NewKafkaClient(brokers []string, topic string) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates the alert topic if it does not exist.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, partitions, replication, nil, topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

// Notify publishes the alert and waits for the broker acknowledgement.
func (k *Kafka) Notify(ctx context.Context, alert audit.Alert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(alert.CompanyID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "report_id", Value: []byte(alert.ReportID)},
			{Key: "status", Value: []byte(alert.Status)},
		},
	}
	if err := k.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish alert for company %s: %w", alert.CompanyID, err)
	}
	k.logger.InfoContext(ctx, "critical audit alert published",
		"company_id", alert.CompanyID, "report_id", alert.ReportID, "findings", len(alert.Findings))
	return nil
}

var _ audit.Notifier = (*Kafka)(nil)
