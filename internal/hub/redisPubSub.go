package hub

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisTopicPrefix = "hub:"

type pubsubConn interface {
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// RedisPubSub fans events out through redis so several instances can share
// the same set of clients. Every client holds its own redis subscription.
type RedisPubSub struct {
	sugar       *zap.SugaredLogger
	redisClient *redis.Client
}

func NewRedisPubSub(sugar *zap.SugaredLogger, redisClient *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		sugar:       sugar,
		redisClient: redisClient,
	}
}

func (ps *RedisPubSub) Attach(ctx context.Context, client *Client) error {
	pubsub := ps.redisClient.Subscribe(ctx)
	client.pubsub = pubsub

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-client.ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !client.deliver(msg.Payload) {
					ps.sugar.Warnf("Dropped message on %s for session ID %d", msg.Channel, client.SessionID)
				}
			}
		}
	}()

	return nil
}

func (ps *RedisPubSub) Detach(client *Client) {
	if client.pubsub == nil {
		return
	}
	err := client.pubsub.Close()
	if err != nil {
		ps.sugar.Debug(err)
	}
}

func (ps *RedisPubSub) Subscribe(ctx context.Context, client *Client, topics ...string) error {
	if client.pubsub == nil {
		return errors.New("client isn't attached to redis")
	}
	return client.pubsub.Subscribe(ctx, prefixed(topics)...)
}

func (ps *RedisPubSub) Unsubscribe(ctx context.Context, client *Client, topics ...string) error {
	if client.pubsub == nil {
		return nil
	}
	return client.pubsub.Unsubscribe(ctx, prefixed(topics)...)
}

func (ps *RedisPubSub) Publish(ctx context.Context, topic string, payload string) error {
	return ps.redisClient.Publish(ctx, redisTopicPrefix+topic, payload).Err()
}

func prefixed(topics []string) []string {
	out := make([]string, len(topics))
	for i, topic := range topics {
		out[i] = redisTopicPrefix + topic
	}
	return out
}
