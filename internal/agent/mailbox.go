package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Message is one envelope delivered on a (role, channel) mailbox
// binding.
type Message struct {
	From    Role
	Channel string
	Payload interface{}
	SentAt  time.Time
}

// MailboxHandler processes one delivered message.
type MailboxHandler func(ctx context.Context, msg Message)

// Mailbox is the swarm's inter-agent transport: one writer per sender,
// one reader per (role, channel) binding, many readers for broadcast
// (§5 ownership rules). Dispatch is synchronous and registration-order
// stable, matching the event bus's dispatch shape.
type Mailbox struct {
	mu   sync.RWMutex
	subs map[string][]MailboxHandler
}

func NewMailbox() *Mailbox {
	return &Mailbox{subs: make(map[string][]MailboxHandler)}
}

func addressKey(role Role, channel string) string {
	return fmt.Sprintf("%s:%s", role, channel)
}

// Subscribe registers handler to receive every message sent to
// (role, channel).
func (m *Mailbox) Subscribe(role Role, channel string, handler MailboxHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := addressKey(role, channel)
	m.subs[key] = append(m.subs[key], handler)
}

// Send delivers a message to every handler subscribed at (to, channel).
func (m *Mailbox) Send(ctx context.Context, from, to Role, channel string, payload interface{}) {
	m.dispatch(ctx, addressKey(to, channel), Message{From: from, Channel: channel, Payload: payload, SentAt: time.Now()})
}

// Broadcast delivers a message to every handler subscribed at
// (broadcast, channel).
func (m *Mailbox) Broadcast(ctx context.Context, from Role, channel string, payload interface{}) {
	m.dispatch(ctx, addressKey(RoleBroadcast, channel), Message{From: from, Channel: channel, Payload: payload, SentAt: time.Now()})
}

func (m *Mailbox) dispatch(ctx context.Context, key string, msg Message) {
	m.mu.RLock()
	handlers := append([]MailboxHandler(nil), m.subs[key]...)
	m.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, msg)
	}
}
