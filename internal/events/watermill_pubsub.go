package events

import (
	"context"
	"maps"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/SessionWarden/go-session-warden/models"
)

// watermillPubSub adapts a Watermill publisher/subscriber pair to the
// models.PubSub interface so the core stays independent of the transport.
type watermillPubSub struct {
	publisher  message.Publisher
	subscriber message.Subscriber
}

// NewWatermillPubSub wraps any Watermill-compatible transport.
func NewWatermillPubSub(publisher message.Publisher, subscriber message.Subscriber) models.PubSub {
	return &watermillPubSub{
		publisher:  publisher,
		subscriber: subscriber,
	}
}

func (w *watermillPubSub) Publish(ctx context.Context, topic string, msg *models.Message) error {
	wmMsg := message.NewMessage(msg.UUID, msg.Payload)
	for key, value := range msg.Metadata {
		wmMsg.Metadata.Set(key, value)
	}
	return w.publisher.Publish(topic, wmMsg)
}

func (w *watermillPubSub) Subscribe(ctx context.Context, topic string) (<-chan *models.Message, error) {
	wmCh, err := w.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	out := make(chan *models.Message)

	go func() {
		defer close(out)

		for wmMsg := range wmCh {
			metadata := make(map[string]string)
			maps.Copy(metadata, wmMsg.Metadata)

			msg := &models.Message{
				UUID:     wmMsg.UUID,
				Payload:  wmMsg.Payload,
				Metadata: metadata,
			}

			select {
			case out <- msg:
				wmMsg.Ack()
			case <-ctx.Done():
				wmMsg.Nack()
				return
			}
		}
	}()

	return out, nil
}

func (w *watermillPubSub) Close() error {
	var pubErr, subErr error

	if closer, ok := w.publisher.(interface{ Close() error }); ok {
		pubErr = closer.Close()
	}
	if closer, ok := w.subscriber.(interface{ Close() error }); ok {
		subErr = closer.Close()
	}

	if pubErr != nil {
		return pubErr
	}
	return subErr
}
