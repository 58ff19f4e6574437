package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
	"github.com/yokitheyo/imageenhancer/internal/config"
	"github.com/yokitheyo/imageenhancer/internal/domain"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

type sentMessage struct {
	key, value []byte
}

// fakeSender records every message. When block is set each send waits for it
// to be closed.
type fakeSender struct {
	mu       sync.Mutex
	messages []sentMessage
	strategy retry.Strategy
	err      error
	closed   bool
	block    chan struct{}
	started  chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{started: make(chan struct{}, 64)}
}

func (f *fakeSender) SendWithRetry(ctx context.Context, strategy retry.Strategy, key, value []byte) error {
	f.started <- struct{}{}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{key: key, value: value})
	f.strategy = strategy
	return f.err
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.messages...)
}

func TestPublishEncodesEvent(t *testing.T) {
	sender := newFakeSender()
	strategy := retry.Strategy{Attempts: 1, Delay: time.Millisecond, Backoff: 1}
	p := newProducer(sender, "events", strategy, 8, time.Second)

	settings := domain.DefaultAdjustments()
	evt := domain.SessionEvent{
		Type:       domain.EventAdjustmentChanged,
		SessionID:  "sess-1",
		RequestID:  3,
		State:      domain.StateReady,
		Settings:   &settings,
		OccurredAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), evt))
	require.NoError(t, p.Close())

	msgs := sender.sentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("sess-1"), msgs[0].key)
	assert.Equal(t, strategy, sender.strategy)

	var decoded domain.SessionEvent
	require.NoError(t, json.Unmarshal(msgs[0].value, &decoded))
	assert.Equal(t, evt, decoded)
	assert.NotContains(t, string(msgs[0].value), "data")
	assert.True(t, sender.closed)
}

func TestPublishDoesNotWaitForSlowBroker(t *testing.T) {
	sender := newFakeSender()
	sender.block = make(chan struct{})
	p := newProducer(sender, "events", retry.Strategy{Attempts: 1}, 8, time.Second)

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Publish(context.Background(), domain.SessionEvent{Type: domain.EventAdjustmentChanged, SessionID: "s"}))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Empty(t, sender.sentMessages())

	close(sender.block)
	require.NoError(t, p.Close())
	assert.Len(t, sender.sentMessages(), 5)
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	sender := newFakeSender()
	sender.block = make(chan struct{})
	p := newProducer(sender, "events", retry.Strategy{Attempts: 1}, 1, time.Second)
	evt := domain.SessionEvent{Type: domain.EventSessionCreated, SessionID: "s"}

	require.NoError(t, p.Publish(context.Background(), evt))
	<-sender.started // first event is in flight, the queue is empty again
	require.NoError(t, p.Publish(context.Background(), evt))
	require.NoError(t, p.Publish(context.Background(), evt))

	close(sender.block)
	require.NoError(t, p.Close())
	assert.Len(t, sender.sentMessages(), 2)
}

func TestCloseGivesUpAfterDrainTimeout(t *testing.T) {
	sender := newFakeSender()
	sender.block = make(chan struct{})
	defer close(sender.block)
	p := newProducer(sender, "events", retry.Strategy{Attempts: 1}, 4, 20*time.Millisecond)

	require.NoError(t, p.Publish(context.Background(), domain.SessionEvent{Type: domain.EventSessionCreated, SessionID: "s"}))
	<-sender.started

	start := time.Now()
	require.NoError(t, p.Close())
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, sender.closed)

	assert.NoError(t, p.Publish(context.Background(), domain.SessionEvent{Type: domain.EventSessionCreated, SessionID: "s"}))
	assert.NoError(t, p.Close())
}

func TestSendErrorDoesNotStopQueue(t *testing.T) {
	sender := newFakeSender()
	sender.err = errors.New("broker down")
	p := newProducer(sender, "events", retry.Strategy{Attempts: 1}, 4, time.Second)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Publish(context.Background(), domain.SessionEvent{Type: domain.EventSessionCreated, SessionID: "s"}))
	}
	require.NoError(t, p.Close())
	assert.Len(t, sender.sentMessages(), 3)
}

func TestNewPublisherDisabled(t *testing.T) {
	pub := NewPublisher(&config.EventsConfig{Enabled: false}, retry.Strategy{})
	assert.IsType(t, NopPublisher{}, pub)
	assert.NoError(t, pub.Publish(context.Background(), domain.SessionEvent{}))
	assert.NoError(t, pub.Close())
}
