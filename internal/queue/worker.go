package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/faro-watch/faro/backend/pkg/logger"
)

// Worker consumes the article and review queues one message at a time.
type Worker struct {
	jobs      *JobRunner
	reviews   *ReviewRunner
	retryBase time.Duration
}

func NewWorker(jobs *JobRunner, reviews *ReviewRunner) *Worker {
	return &Worker{jobs: jobs, reviews: reviews, retryBase: RetryBase}
}

type queuedMessage struct {
	msg       amqp091.Delivery
	queueName string
}

// Run consumes until ctx is done or a delivery channel closes.
func (w *Worker) Run(ctx context.Context, conn *amqp091.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := SetupQueues(ch, Queues); err != nil {
		return err
	}

	// A single consumer channel with prefetch=1 delivers only one message
	// at a time across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	messageChan := make(chan queuedMessage)
	done := make(chan error, len(Queues))

	for _, queueName := range Queues {
		msgs, err := consumerCh.Consume(
			queueName,
			queueName+"_consumer",
			false, // autoAck
			false, // exclusive
			false, // noLocal
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to consume %s: %w", queueName, err)
		}

		go func(qName string) {
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						done <- fmt.Errorf("delivery channel of %s closed", qName)
						return
					}
					select {
					case messageChan <- queuedMessage{msg: msg, queueName: qName}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(queueName)
	}

	logger.Info("[Queue] Listening for messages", "queues", Queues)
	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping message processor")
			return nil
		case err := <-done:
			return err
		case qm := <-messageChan:
			w.handle(ctx, ch, qm)
		}
	}
}

func (w *Worker) handle(ctx context.Context, pub Publisher, qm queuedMessage) {
	startTime := time.Now()
	attempt := Retries(qm.msg) + 1
	logger.Debug("[Queue] Received message", "queue", qm.queueName, "attempt", attempt)

	var (
		err     error
		job     ArticleJobMsg
		haveJob bool
	)
	switch qm.queueName {
	case ArticleQueue:
		job, err = decodeArticleJob(qm.msg.Body)
		if err == nil {
			haveJob = true
			err = w.jobs.Run(ctx, job, attempt)
		}
	case ReviewQueue:
		err = w.reviews.Process(ctx, qm.msg.Body)
	default:
		err = fmt.Errorf("%w: unknown queue %s", ErrMalformed, qm.queueName)
	}

	if err == nil {
		if ackErr := qm.msg.Ack(false); ackErr != nil {
			logger.Error("[Queue] Failed to ack message", "queue", qm.queueName, "err", ackErr)
		}
		logger.Info("[Queue] Message processed", "queue", qm.queueName, "duration", time.Since(startTime))
		return
	}

	logger.Error("[Queue] Error processing message", "queue", qm.queueName, "attempt", attempt, "err", err)
	deadLettered, routeErr := handleProcessingError(ctx, pub, qm.msg, qm.queueName, w.retryBase, errors.Is(err, ErrMalformed))
	if routeErr != nil {
		logger.Error("[Queue] Failed to route failed message", "queue", qm.queueName, "err", routeErr)
		return
	}
	if deadLettered && haveJob {
		w.jobs.Fail(ctx, job, err)
	}
}
