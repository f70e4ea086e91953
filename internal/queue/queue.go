package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/faro-watch/faro/backend/internal/util"
	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/logger"
)

const (
	ArticleQueue = "article_queue"
	ReviewQueue  = "review_queue"

	// MaxRetries is the number of redeliveries after the first attempt.
	MaxRetries = 3
	// RetryBase is the delay before the first redelivery; it doubles per retry.
	RetryBase = 2 * time.Second

	retriesHeader = "x-retries"
)

// Queues lists every work queue consumed by the worker.
var Queues = []string{ArticleQueue, ReviewQueue}

// ArticleJobMsg asks the worker to run the pipeline over one stored article.
type ArticleJobMsg struct {
	JobID     string `json:"job_id"`
	ArticleID string `json:"article_id"`
}

// ReviewJobMsg asks the worker to run the automated reviewer on a mention.
type ReviewJobMsg struct {
	Request common.ReviewRequest `json:"request"`
}

// Publisher is the publishing half of an AMQP channel.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnv("RABBITMQ_PORT")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

// SetupQueues declares every queue with its _retry and _dlq companions.
// Retry queues carry no queue-wide TTL: each redelivery sets its own
// expiration and dead-letters back into the main queue.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	for _, name := range queueNames {
		if _, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}

		dlqName := DeadLetterQueue(name)
		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", dlqName, err)
		}

		retryName := RetryQueue(name)
		if _, err := ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", retryName, err)
		}
	}

	return nil
}

func RetryQueue(name string) string      { return name + "_retry" }
func DeadLetterQueue(name string) string { return name + "_dlq" }

// PublishFIFO publishes a persistent message to the default exchange.
func PublishFIFO(ctx context.Context, ch Publisher, queueName string, data []byte) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return ch.PublishWithContext(
		ctx,
		"",
		queueName,
		false,
		false,
		publishing,
	)
}
