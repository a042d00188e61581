package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notifier delivers change-notification triggers to client transports.
// Delivery is fire-and-forget: a failed publish must never fail the
// operation that raised it.
type Notifier interface {
	Notify(ctx context.Context, topic, userID, message string, count int) error
}

// Message is the payload published for each trigger.
type Message struct {
	Topic   string    `json:"topic"`
	UserID  string    `json:"user_id"`
	Message string    `json:"message"`
	Count   int       `json:"count"`
	SentAt  time.Time `json:"sent_at"`
}

// RedisNotifier publishes triggers on Redis pub/sub channels. Real-time
// transports (websocket gateways, push workers) subscribe to the channels.
type RedisNotifier struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisNotifier constructs a notifier. A nil client disables publishing.
func NewRedisNotifier(client *redis.Client, prefix string, logger *zap.Logger) *RedisNotifier {
	if prefix == "" {
		prefix = "krs:notify"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{client: client, prefix: prefix, logger: logger}
}

// Notify publishes the trigger on the topic channel and, when a user is
// addressed, on that user's private channel.
func (n *RedisNotifier) Notify(ctx context.Context, topic, userID, message string, count int) error {
	if n.client == nil {
		return nil
	}

	payload, err := json.Marshal(Message{
		Topic:   topic,
		UserID:  userID,
		Message: message,
		Count:   count,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	channel := fmt.Sprintf("%s:%s", n.prefix, topic)
	if err := n.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}

	if userID != "" {
		userChannel := fmt.Sprintf("%s:user:%s", n.prefix, userID)
		if err := n.client.Publish(ctx, userChannel, payload).Err(); err != nil {
			n.logger.Warn("user channel publish failed", zap.String("channel", userChannel), zap.Error(err))
		}
	}

	return nil
}

// NopNotifier drops all triggers. Used when notifications are disabled.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(ctx context.Context, topic, userID, message string, count int) error {
	return nil
}
