package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/faro-watch/faro/backend/pkg/common"
)

// RabbitPublisher sends article jobs and review requests over AMQP.
type RabbitPublisher struct {
	mu sync.Mutex
	ch Publisher
}

func NewRabbitPublisher(ch Publisher) *RabbitPublisher {
	return &RabbitPublisher{ch: ch}
}

func (p *RabbitPublisher) publish(ctx context.Context, queueName string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", queueName, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return PublishFIFO(ctx, p.ch, queueName, data)
}

func (p *RabbitPublisher) EnqueueJob(ctx context.Context, msg ArticleJobMsg) error {
	return p.publish(ctx, ArticleQueue, msg)
}

// Dispatch queues an automated review for the worker.
func (p *RabbitPublisher) Dispatch(ctx context.Context, req common.ReviewRequest) error {
	return p.publish(ctx, ReviewQueue, ReviewJobMsg{Request: req})
}
