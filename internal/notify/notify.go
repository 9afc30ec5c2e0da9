package notify

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=notify.go -destination=notify_mock.go -package=notify

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type LogNotifier struct {
	logger logrus.FieldLogger
}

func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, text string) error {
	n.logger.WithField("component", "notify").Info(text)
	return nil
}

// RedisNotifier publishes each message on a Redis pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, text string) error {
	return n.client.Publish(ctx, n.channel, text).Err()
}

// Multi delivers to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
