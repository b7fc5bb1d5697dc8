package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/SessionWarden/go-session-warden/models"
)

// inMemoryPubSub is a channel-backed PubSub for single-process deployments
// and tests. Messages published to a topic are delivered to every live
// subscriber of that topic, in publish order per subscriber.
type inMemoryPubSub struct {
	mu         sync.RWMutex
	subs       map[string][]chan *models.Message
	bufferSize int
	closed     bool
}

// NewInMemoryPubSub creates an in-process PubSub. bufferSize <= 0 picks a
// default of 64 per subscriber channel.
func NewInMemoryPubSub(bufferSize int) models.PubSub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &inMemoryPubSub{
		subs:       make(map[string][]chan *models.Message),
		bufferSize: bufferSize,
	}
}

func (ps *inMemoryPubSub) Publish(ctx context.Context, topic string, msg *models.Message) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if ps.closed {
		return fmt.Errorf("pubsub: closed")
	}

	for _, ch := range ps.subs[topic] {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (ps *inMemoryPubSub) Subscribe(ctx context.Context, topic string) (<-chan *models.Message, error) {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return nil, fmt.Errorf("pubsub: closed")
	}

	ch := make(chan *models.Message, ps.bufferSize)
	ps.subs[topic] = append(ps.subs[topic], ch)
	ps.mu.Unlock()

	go func() {
		<-ctx.Done()
		ps.remove(topic, ch)
	}()

	return ch, nil
}

func (ps *inMemoryPubSub) remove(topic string, ch chan *models.Message) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	subs := ps.subs[topic]
	for i, sub := range subs {
		if sub == ch {
			ps.subs[topic] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(ps.subs[topic]) == 0 {
		delete(ps.subs, topic)
	}
}

func (ps *inMemoryPubSub) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return nil
	}
	ps.closed = true

	for topic, subs := range ps.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(ps.subs, topic)
	}
	return nil
}
