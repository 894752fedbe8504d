package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis broadcasts over redis Pub/Sub so events reach observers connected
// to any api instance. Channel per class, no persistence.
type Redis struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedis builds a redis-backed broadcaster.
func NewRedis(client *redis.Client, log *zap.Logger) *Redis {
	return &Redis{client: client, log: log}
}

// Publish sends ev on the class channel. A channel with no subscribers is
// not an error.
func (r *Redis) Publish(ctx context.Context, classID string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, Channel(classID), payload).Err()
}

// Subscribe joins the class channel and decodes events until the
// subscription is closed or ctx is done.
func (r *Redis) Subscribe(ctx context.Context, classID string) (*Subscription, error) {
	pubsub := r.client.Subscribe(ctx, Channel(classID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.log.Warn("broadcast: bad payload", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				default: // slow observer, drop
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return &Subscription{C: out, cancel: cancel}, nil
}
