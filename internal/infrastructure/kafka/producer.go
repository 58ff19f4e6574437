package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/imageenhancer/internal/config"
	"github.com/yokitheyo/imageenhancer/internal/domain"
)

const batchTimeout = 10 * time.Millisecond

// sender is the part of the wbf producer the publisher relies on.
type sender interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key, value []byte) error
	Close() error
}

type message struct {
	sessionID string
	eventType domain.EventType
	value     []byte
}

// Producer publishes session lifecycle events in the background. Publish only
// enqueues; a single goroutine sends in order, so a slow or unreachable broker
// never holds up the caller. Events are dropped when the queue is full.
type Producer struct {
	client       sender
	topic        string
	strategy     retry.Strategy
	drainTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan message
	done   chan struct{}
}

var _ domain.EventPublisher = (*Producer)(nil)

func NewProducer(cfg *config.EventsConfig, strategy retry.Strategy) *Producer {
	brokers := cfg.BrokerList()
	client := wbfkafka.NewProducer(brokers, cfg.Topic)
	// hash on the session id key so one session's events land on one partition in order
	client.Writer.Balancer = &kafkago.Hash{}
	client.Writer.BatchTimeout = batchTimeout
	zlog.Logger.Info().
		Strs("brokers", brokers).
		Str("topic", cfg.Topic).
		Int("buffer_size", cfg.BufferSize).
		Msg("Kafka event producer initialized (wbf)")
	return newProducer(client, cfg.Topic, strategy, cfg.BufferSize, time.Duration(cfg.DrainTimeoutSec)*time.Second)
}

func newProducer(client sender, topic string, strategy retry.Strategy, bufferSize int, drainTimeout time.Duration) *Producer {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	p := &Producer{
		client:       client,
		topic:        topic,
		strategy:     strategy,
		drainTimeout: drainTimeout,
		queue:        make(chan message, bufferSize),
		done:         make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues the event and returns immediately. ctx is not used for the
// send itself, which outlives the request that caused it.
func (p *Producer) Publish(ctx context.Context, event domain.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		zlog.Logger.Error().
			Err(err).
			Str("session_id", event.SessionID).
			Str("event", string(event.Type)).
			Msg("Failed to marshal event")
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		zlog.Logger.Warn().
			Str("session_id", event.SessionID).
			Str("event", string(event.Type)).
			Msg("Kafka producer closed, event dropped")
		return nil
	}

	select {
	case p.queue <- message{sessionID: event.SessionID, eventType: event.Type, value: data}:
	default:
		zlog.Logger.Warn().
			Str("session_id", event.SessionID).
			Str("event", string(event.Type)).
			Int("buffer_size", cap(p.queue)).
			Msg("Kafka event queue full, event dropped")
	}
	return nil
}

func (p *Producer) run() {
	defer close(p.done)
	for msg := range p.queue {
		if err := p.client.SendWithRetry(context.Background(), p.strategy, []byte(msg.sessionID), msg.value); err != nil {
			zlog.Logger.Error().
				Err(err).
				Str("session_id", msg.sessionID).
				Str("event", string(msg.eventType)).
				Msg("Failed to send Kafka message with retry")
			continue
		}
		zlog.Logger.Debug().
			Str("session_id", msg.sessionID).
			Str("event", string(msg.eventType)).
			Str("topic", p.topic).
			Msg("Event sent to Kafka")
	}
}

// Close stops accepting events, waits up to the drain timeout for queued ones
// to be sent and closes the underlying writer.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	timer := time.NewTimer(p.drainTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		zlog.Logger.Warn().
			Int("pending", len(p.queue)).
			Dur("drain_timeout", p.drainTimeout).
			Msg("Kafka event queue not drained before close")
	}

	if err := p.client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to close Kafka producer")
		return err
	}
	zlog.Logger.Info().Msg("Kafka producer closed successfully")
	return nil
}

// NopPublisher drops every event. It is used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.SessionEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

// NewPublisher returns the Kafka producer when events are enabled and a
// NopPublisher otherwise.
func NewPublisher(cfg *config.EventsConfig, strategy retry.Strategy) domain.EventPublisher {
	if !cfg.Enabled {
		zlog.Logger.Info().Msg("Session events disabled")
		return NopPublisher{}
	}
	return NewProducer(cfg, strategy)
}
