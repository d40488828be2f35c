package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"feedback-kiosk/internal/domain"
)

// RedisFeedbackQueue публикует события отзывов в Redis list. Запасной
// вариант, когда RabbitMQ не настроен, но Redis уже есть у киоска.
type RedisFeedbackQueue struct {
	client *redis.Client
	key    string
}

// NewRedisFeedbackQueue создаёт очередь по указанному ключу.
func NewRedisFeedbackQueue(client *redis.Client, key string) *RedisFeedbackQueue {
	return &RedisFeedbackQueue{client: client, key: key}
}

// Publish кладёт событие в список.
func (q *RedisFeedbackQueue) Publish(ctx context.Context, event domain.FeedbackEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

var _ domain.FeedbackEventQueue = (*RedisFeedbackQueue)(nil)
