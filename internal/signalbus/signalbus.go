// Package signalbus is the durable cross-node pub/sub layer the agent
// swarm uses to share intelligence across every sentinel process
// watching the launchpad (§4.8). Unlike the in-process event bus, a
// signal published here survives a subscriber restart: each channel is
// a capped Redis stream read through one consumer group shared by every
// process, each process reading as its own consumer named by its node
// ID, so each signal is delivered at-least-once to one consumer of the
// group. A process acks and skips signals it published itself.
package signalbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/observability"
)

const (
	streamMaxLen  = 10_000
	pollTick      = 500 * time.Millisecond
	pollBlock     = 2000 * time.Millisecond
	pollBatchSize = 50
	consumerGroup = "sentinel"
)

// Signal is the wire envelope appended to a channel's stream.
type Signal struct {
	ID        string          `json:"id"`
	NodeID    string          `json:"nodeId"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler processes one signal. A returned error leaves the message
// unacked so it is redelivered to the consumer group.
type Handler func(ctx context.Context, sig Signal) error

// Bus publishes and consumes signals over Redis streams, one stream per
// channel, namespaced by the configured channel prefix.
type Bus struct {
	kv     *store.KV
	logger *observability.Logger
	nodeID string
	prefix string

	mu       sync.Mutex
	handlers map[string][]Handler

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(cfg config.NodeConfig, kv *store.KV, logger *observability.Logger) *Bus {
	return &Bus{
		kv:       kv,
		logger:   logger,
		nodeID:   cfg.ID,
		prefix:   cfg.IntelChannelPrefix,
		handlers: make(map[string][]Handler),
		stopChan: make(chan struct{}),
	}
}

func (b *Bus) streamKey(channel string) string {
	return fmt.Sprintf("%s:signals:%s", b.prefix, channel)
}

// Publish appends a signal to channel's stream, trimmed to roughly
// streamMaxLen entries.
func (b *Bus) Publish(ctx context.Context, channel, signalType string, data interface{}) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode signal data: %w", err)
	}

	sig := Signal{
		ID:        uuid.NewString(),
		NodeID:    b.nodeID,
		Type:      signalType,
		Data:      encoded,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to encode signal envelope: %w", err)
	}

	_, err = b.kv.XAddCapped(ctx, b.streamKey(channel), map[string]interface{}{"payload": string(payload)}, streamMaxLen)
	if err != nil {
		return fmt.Errorf("failed to publish signal on %q: %w", channel, err)
	}
	return nil
}

// Subscribe registers handler for every signal delivered on channel.
// Subscriptions must be registered before StartConsuming is called.
func (b *Bus) Subscribe(channel string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = append(b.handlers[channel], handler)
}

// StartConsuming ensures a consumer group exists for every subscribed
// channel and polls each in its own goroutine.
func (b *Bus) StartConsuming(ctx context.Context) error {
	b.mu.Lock()
	channels := make([]string, 0, len(b.handlers))
	for ch := range b.handlers {
		channels = append(channels, ch)
	}
	b.mu.Unlock()

	for _, channel := range channels {
		if err := b.kv.XGroupCreateMkStream(ctx, b.streamKey(channel), consumerGroup); err != nil {
			return fmt.Errorf("failed to create consumer group for %q: %w", channel, err)
		}
	}

	for _, channel := range channels {
		b.wg.Add(1)
		go b.consumeLoop(ctx, channel)
	}
	return nil
}

func (b *Bus) consumeLoop(ctx context.Context, channel string) {
	defer b.wg.Done()
	ticker := time.NewTicker(pollTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.poll(ctx, channel); err != nil {
				b.logger.Warn(ctx, "signal bus poll failed", map[string]interface{}{
					"channel": channel, "error": err.Error(),
				})
			}
		}
	}
}

func (b *Bus) poll(ctx context.Context, channel string) error {
	streamKey := b.streamKey(channel)
	streams, err := b.kv.XReadGroup(ctx, streamKey, consumerGroup, b.nodeID, pollBatchSize, pollBlock)
	if err != nil {
		return err
	}

	b.mu.Lock()
	handlers := append([]Handler(nil), b.handlers[channel]...)
	b.mu.Unlock()

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			raw, _ := msg.Values["payload"].(string)
			var sig Signal
			if err := json.Unmarshal([]byte(raw), &sig); err != nil {
				b.logger.Error(ctx, "failed to decode signal", err, map[string]interface{}{"channel": channel, "id": msg.ID})
				_ = b.kv.XAck(ctx, streamKey, consumerGroup, msg.ID)
				continue
			}

			if sig.NodeID == b.nodeID {
				_ = b.kv.XAck(ctx, streamKey, consumerGroup, msg.ID)
				continue
			}

			if b.dispatch(ctx, channel, sig, handlers) {
				_ = b.kv.XAck(ctx, streamKey, consumerGroup, msg.ID)
			}
		}
	}
	return nil
}

// dispatch runs every handler for channel and only reports success if
// all of them succeeded, so a failing handler leaves the message
// pending for redelivery.
func (b *Bus) dispatch(ctx context.Context, channel string, sig Signal, handlers []Handler) bool {
	ok := true
	for _, h := range handlers {
		if err := h(ctx, sig); err != nil {
			b.logger.Error(ctx, "signal handler failed", err, map[string]interface{}{
				"channel": channel, "signalId": sig.ID, "type": sig.Type,
			})
			ok = false
		}
	}
	return ok
}

// Stop signals every consume loop to exit and waits for them.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.stopChan) })
	b.wg.Wait()
}
