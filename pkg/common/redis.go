package common

import (
	"context"
	"fmt"

	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	redis.UniversalClient
}

type RedisOption func(*redis.UniversalOptions)

func WithClientName(name string) RedisOption {
	return func(o *redis.UniversalOptions) {
		o.ClientName = name
	}
}

// NewRedisClient connects and pings the configured server.
func NewRedisClient(cfg types.RedisConfig, opts ...RedisOption) (*RedisClient, error) {
	options := &redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewUniversalClient(options)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	return &RedisClient{UniversalClient: client}, nil
}

// Subscribe confirms the subscription before returning. Messages are
// delivered until ctx ends or the connection fails; a failure is sent on
// the error channel and both channels stop.
func (r *RedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan *redis.Message, <-chan error) {
	out := make(chan *redis.Message)
	errs := make(chan error, 1)

	pubsub := r.UniversalClient.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		errs <- err
		close(out)
		return out, errs
	}

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					errs <- redis.ErrClosed
					return
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errs
}
