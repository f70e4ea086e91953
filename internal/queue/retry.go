package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/faro-watch/faro/backend/internal/util"
	"github.com/faro-watch/faro/backend/pkg/logger"
)

// Retries returns how often the message has already been redelivered.
func Retries(msg amqp091.Delivery) int {
	switch v := msg.Headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// handleProcessingError routes a failed delivery: back through the retry
// queue with an exponential per-message TTL, or to the dead-letter queue once
// MaxRetries redeliveries are spent or the message is poison. It reports
// whether the message was dead-lettered.
func handleProcessingError(ctx context.Context, ch Publisher, msg amqp091.Delivery, queueName string, base time.Duration, poison bool) (bool, error) {
	retries := Retries(msg)

	if poison || retries >= MaxRetries {
		dlqName := DeadLetterQueue(queueName)
		logger.Warn("[Queue] Sending message to DLQ", "dlq", dlqName, "retries", retries)
		if err := ch.PublishWithContext(ctx, "", dlqName, false, false, amqp091.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			Headers:      msg.Headers,
			DeliveryMode: amqp091.Persistent,
		}); err != nil {
			_ = msg.Nack(false, true)
			return false, fmt.Errorf("failed to publish to %s: %w", dlqName, err)
		}
		return true, msg.Ack(false)
	}

	retryName := RetryQueue(queueName)
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retriesHeader] = int32(retries + 1)
	delay := util.Backoff(base, retries+1)

	if err := ch.PublishWithContext(ctx, "", retryName, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
		Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
	}); err != nil {
		_ = msg.Nack(false, true)
		return false, fmt.Errorf("failed to publish to %s: %w", retryName, err)
	}
	logger.Info("[Queue] Scheduled retry", "queue", queueName, "retry", retries+1, "delay", delay)
	return false, msg.Ack(false)
}
