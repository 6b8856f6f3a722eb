package daemon

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battstat/pkg/config"
	"github.com/charlie0129/battstat/pkg/events"
)

// publishTimeout bounds a single publish so a stuck broker cannot hold
// up the status loop.
const publishTimeout = 2 * time.Second

// statusPublisher forwards status changes to an external system.
type statusPublisher interface {
	name() string
	publish(ctx context.Context, ev events.StatusChangedEvent) error
	Close()
}

// setupPublishers connects every publisher enabled in c. A publisher that
// cannot connect is logged and left out.
func setupPublishers(ctx context.Context, c config.Config) []statusPublisher {
	var ret []statusPublisher

	if addr := c.RedisAddr(); addr != "" {
		p, err := newRedisPublisher(ctx, addr, c.RedisKey())
		if err != nil {
			logrus.WithField("redisAddr", addr).Errorf("redis publishing disabled: %v", err)
		} else {
			ret = append(ret, p)
		}
	}

	if broker := c.MQTTBroker(); broker != "" {
		p, err := newMQTTPublisher(broker, c.MQTTTopic())
		if err != nil {
			logrus.WithField("mqttBroker", broker).Errorf("mqtt publishing disabled: %v", err)
		} else {
			ret = append(ret, p)
		}
	}

	return ret
}

func publishAll(ctx context.Context, ps []statusPublisher, ev events.StatusChangedEvent) {
	for _, p := range ps {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := p.publish(pctx, ev)
		cancel()
		if err != nil {
			logrus.WithField("publisher", p.name()).Warnf("failed to publish status: %v", err)
		}
	}
}

func closePublishers(ps []statusPublisher) {
	for _, p := range ps {
		p.Close()
	}
}
