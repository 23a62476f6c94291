// Package events forwards purchase session events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"otp-agent/internal/model"
)

// Producer writes one keyed message. client.KafkaProducer satisfies it.
type Producer interface {
	ProduceMessage(ctx context.Context, key, value []byte, headers map[string]string) error
}

// Publisher queues events and writes them from a single worker so the
// purchase controller never waits on Kafka. Events are dropped, with a
// warning, when the queue is full.
type Publisher struct {
	producer     Producer
	logger       *zap.Logger
	writeTimeout time.Duration

	queue chan model.SessionEvent
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewPublisher(producer Producer, logger *zap.Logger, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	p := &Publisher{
		producer:     producer,
		logger:       logger,
		writeTimeout: 5 * time.Second,
		queue:        make(chan model.SessionEvent, buffer),
		done:         make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Publisher) OnSessionEvent(ev model.SessionEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- ev:
	default:
		p.logger.Warn("event queue full, dropping event",
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
		)
	}
}

// Close stops accepting events and waits until queued ones are written or
// ctx ends.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		p.write(ev)
	}
}

func (p *Publisher) write(ev model.SessionEvent) {
	value, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to encode event", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}

	key := ev.Session.RequestID.String()
	if key == "" {
		key = ev.Session.ID
	}
	headers := map[string]string{
		"event_type": string(ev.Type),
		"event_id":   ev.ID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()
	if err := p.producer.ProduceMessage(ctx, []byte(key), value, headers); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}
