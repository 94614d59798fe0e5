package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// Consumer is the consuming side of an AMQP channel.
type Consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
}

// HandlerFunc processes one message body.
type HandlerFunc func(ctx context.Context, body []byte) error

// Run consumes queueName one message at a time until ctx is done or the
// delivery channel closes. Failed messages go through HandleProcessingError.
func Run(ctx context.Context, consumer Consumer, publisher Publisher, queueName string, handler HandlerFunc) error {
	msgs, err := consumer.Consume(queueName, queueName+"_consumer", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", queueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer", "queue", queueName)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("[Queue] Message channel closed", "queue", queueName)
				return nil
			}
			handle(ctx, publisher, queueName, msg, handler)
		}
	}
}

func handle(ctx context.Context, publisher Publisher, queueName string, msg amqp091.Delivery, handler HandlerFunc) {
	start := time.Now()
	logger.Info("[Queue] Received message", "queue", queueName, "retries", retries(msg.Headers))

	err := handler(ctx, msg.Body)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Shutting down; let the broker redeliver.
			_ = msg.Nack(false, true)
			return
		}
		logger.Error("[Queue] Error processing message", "queue", queueName, "err", err)
		HandleProcessingError(publisher, msg, queueName, err)
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
	logger.Info("[Queue] Message processed", "queue", queueName, "duration", time.Since(start).Round(time.Millisecond))
}
