package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/delento/iot-data-processor/pkg/monitor"
	"github.com/delento/iot-data-processor/pkg/types"
)

// QueuePublisher pushes payloads onto a redis channel for deployments
// where an external consumer drains the queue instead of this process
// posting to the billing API directly.
type QueuePublisher struct {
	client  *redis.Client
	channel string
	log     *logrus.Logger
}

func NewQueuePublisher(addr, password, channel string, db int, log *logrus.Logger) (*QueuePublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Connected to redis queue")

	return &QueuePublisher{
		client:  client,
		channel: channel,
		log:     log,
	}, nil
}

// Send publishes the payload on the pub/sub channel and appends it to a
// per-meter list kept as a capped backlog for late consumers.
func (q *QueuePublisher) Send(ctx context.Context, payload *types.OutputPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if err := q.client.Publish(ctx, q.channel, jsonData).Err(); err != nil {
		monitor.DeliveryErrors.Inc()
		return fmt.Errorf("failed to publish payload: %w", err)
	}

	listKey := fmt.Sprintf("meter:%s:payloads", payload.Header.MSN)
	if err := q.client.LPush(ctx, listKey, jsonData).Err(); err != nil {
		q.log.Warnf("Failed to append payload to backlog: %v", err)
	}
	// keep the most recent 1000 payloads per meter
	if err := q.client.LTrim(ctx, listKey, 0, 999).Err(); err != nil {
		q.log.Warnf("Failed to trim backlog: %v", err)
	}

	monitor.PayloadsDelivered.Inc()
	return nil
}

func (q *QueuePublisher) Close() error {
	return q.client.Close()
}
