package daemon

import (
	"context"
	"encoding/json"
	"strconv"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battstat/pkg/events"
)

// redisPublisher mirrors the status into a Redis hash and announces each
// change on a channel of the same name.
type redisPublisher struct {
	client *redis.Client
	key    string
}

func newRedisPublisher(ctx context.Context, addr, key string) (*redisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, pkgerrors.Wrapf(err, "failed to connect to redis at %s", addr)
	}

	logrus.WithFields(logrus.Fields{
		"redisAddr": addr,
		"redisKey":  key,
	}).Info("publishing battery status to redis")

	return &redisPublisher{client: client, key: key}, nil
}

var _ statusPublisher = &redisPublisher{}

func (p *redisPublisher) name() string { return "redis" }

func (p *redisPublisher) publish(ctx context.Context, ev events.StatusChangedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode status")
	}

	s := ev.Status
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, p.key, map[string]interface{}{
		"present":   strconv.FormatBool(s.Present),
		"percent":   s.Percent,
		"minutes":   s.Minutes,
		"charging":  strconv.FormatBool(s.Charging),
		"onACPower": strconv.FormatBool(s.OnACPower),
		"state":     ev.State,
		"backend":   ev.Backend,
		"updatedAt": ev.Ts,
	})
	pipe.Publish(ctx, p.key, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return pkgerrors.Wrap(err, "failed to execute redis transaction")
	}

	return nil
}

func (p *redisPublisher) Close() {
	if err := p.client.Close(); err != nil {
		logrus.Warnf("failed to close redis client: %v", err)
	}
}
