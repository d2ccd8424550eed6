package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const channelPrefix = "concierge:"

// RedisHub pub/sub событий через Redis
type RedisHub struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisHub(client *redis.Client, logger *zap.Logger) *RedisHub {
	return &RedisHub{client: client, logger: logger}
}

func (h *RedisHub) Publish(ctx context.Context, topic string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return h.client.Publish(ctx, channelPrefix+topic, data).Err()
}

// Subscribe подписывает пользователя на topics. В канал попадают только
// события, где пользователь заказчик или tastemaker. Канал закрывается
// при отмене ctx.
func (h *RedisHub) Subscribe(ctx context.Context, viewerID uuid.UUID, topics ...string) (<-chan Event, error) {
	channels := make([]string, len(topics))
	for i, topic := range topics {
		channels[i] = channelPrefix + topic
	}

	pubsub := h.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					h.logger.Warn("Skipping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				if !event.VisibleTo(viewerID) {
					continue
				}

				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
