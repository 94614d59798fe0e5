package queue

import (
	"errors"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// MaxRetries is how often a message goes through the retry queue before it
// is dead lettered.
const MaxRetries = 10

func retries(headers amqp091.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// HandleProcessingError routes a failed delivery to the retry queue, or to
// the dead letter queue once MaxRetries is reached or the failure is
// permanent. The delivery is acked once the copy was published and requeued
// otherwise.
func HandleProcessingError(ch Publisher, msg amqp091.Delivery, queueName string, cause error) {
	n := retries(msg.Headers)

	if n >= MaxRetries || errors.Is(cause, ErrPermanent) {
		dlqName := queueName + "_dlq"
		logger.Warn("[Queue] Sending message to DLQ", "dlq", dlqName, "retries", n, "err", cause)
		headers := amqp091.Table{}
		for k, v := range msg.Headers {
			headers[k] = v
		}
		if cause != nil {
			headers["x-error"] = cause.Error()
		}
		err := ch.Publish("", dlqName, false, false, amqp091.Publishing{
			ContentType: msg.ContentType,
			Body:        msg.Body,
			Headers:     headers,
		})
		if err != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", err)
			_ = msg.Nack(false, true)
			return
		}
		_ = msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-retries"] = int32(n + 1)

	err := ch.Publish("", retryName, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}
