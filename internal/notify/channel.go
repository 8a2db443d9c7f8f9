package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
)

// Channel delivers rendered messages.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// LogChannel writes messages to the log. It is the fallback when no delivery
// client is configured for a platform.
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger.With("component", "notify_log")}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(ctx context.Context, msg Message) (Receipt, error) {
	c.logger.Info("Notification",
		"kind", msg.Kind,
		"destination", msg.Destination,
		"platform", msg.Platform,
		"token", msg.Token,
		"text", msg.Text,
	)
	return Receipt{Channel: c.Name(), MessageID: msg.ID}, nil
}

// WebhookChannel posts messages as JSON to an HTTP endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates a webhook channel with the given URL.
func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, msg Message) (Receipt, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return Receipt{}, fmt.Errorf("webhook returned %d: %s", resp.StatusCode, data)
	}

	receipt := Receipt{Channel: c.Name(), MessageID: msg.ID}
	var ack struct {
		MessageID string `json:"message_id"`
	}
	if json.Unmarshal(data, &ack) == nil && ack.MessageID != "" {
		receipt.MessageID = ack.MessageID
	}
	return receipt, nil
}

// KafkaConfig holds Kafka producer configuration.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// KafkaChannel publishes messages to a Kafka topic keyed by destination, so
// messages for one destination stay ordered.
type KafkaChannel struct {
	writer *kafka.Writer
}

func NewKafkaChannel(cfg KafkaConfig) *KafkaChannel {
	return &KafkaChannel{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}
}

func (c *KafkaChannel) Name() string { return "kafka" }

func (c *KafkaChannel) Send(ctx context.Context, msg Message) (Receipt, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal message: %w", err)
	}
	err = c.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Destination),
		Value: data,
		Time:  msg.CreatedAt,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("kafka publish: %w", err)
	}
	return Receipt{Channel: c.Name(), MessageID: msg.ID}, nil
}

// Close flushes and closes the producer.
func (c *KafkaChannel) Close() error {
	return c.writer.Close()
}
