package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matheus3301/quickchat/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel shared by all chatd instances.
const DefaultChannel = "quickchat:messages"

// Redis is a Broker that lets several chatd instances share one change feed
// through Redis pub/sub.
type Redis struct {
	cli     *redis.Client
	channel string
	logger  *zap.Logger
	buf     int
}

// NewRedis connects to url (redis://...) and verifies the connection.
func NewRedis(ctx context.Context, url string, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{cli: cli, channel: DefaultChannel, logger: logger.Named("feed"), buf: DefaultBuffer}, nil
}

func (r *Redis) Publish(ctx context.Context, evt model.ChangeEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if err := r.cli.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, userID string) (<-chan model.ChangeEvent, func(), error) {
	ps := r.cli.Subscribe(ctx, r.channel)
	// Wait for the subscription to be confirmed so no publish after return is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("redis subscribe: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan model.ChangeEvent, r.buf)
	src := ps.Channel()

	go func() {
		defer close(out)
		defer func() { _ = ps.Close() }()
		for {
			select {
			case msg, ok := <-src:
				if !ok {
					return
				}
				var ce model.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ce); err != nil {
					r.logger.Warn("bad change event on channel", zap.Error(err))
					continue
				}
				if !Visible(ce, userID) {
					continue
				}
				if !offer(out, ce) {
					r.logger.Warn("subscriber too slow, closing feed", zap.String("user_id", userID))
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}

func (r *Redis) Close() error {
	return r.cli.Close()
}
